package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/pkg/jobs"
)

type eventPublisher interface {
	Publish(ctx context.Context, key string, payload interface{}) error
}

type letterEnsurer interface {
	Ensure(ctx context.Context, candidateID string) (string, error)
}

// AdmissionEventHandler runs the post-commit work of an approval: it stores the
// admission letter and publishes the approval event keyed by NIM.
type AdmissionEventHandler struct {
	letters   letterEnsurer
	publisher eventPublisher
	logger    *zap.Logger
}

// NewAdmissionEventHandler constructs the handler. letters and publisher may be nil.
func NewAdmissionEventHandler(letters letterEnsurer, publisher eventPublisher, logger *zap.Logger) *AdmissionEventHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionEventHandler{letters: letters, publisher: publisher, logger: logger}
}

// Handle is a jobs.Handler. Returning an error makes the queue retry the job, so
// both steps are safe to repeat.
func (h *AdmissionEventHandler) Handle(ctx context.Context, job jobs.Job) error {
	if job.Type != models.EventAdmissionApproved {
		h.logger.Warn("dropping job of unknown type", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	var event models.AdmissionApprovedEvent
	switch payload := job.Payload.(type) {
	case models.AdmissionApprovedEvent:
		event = payload
	case *models.AdmissionApprovedEvent:
		if payload == nil {
			return fmt.Errorf("job %s: nil payload", job.ID)
		}
		event = *payload
	default:
		h.logger.Error("dropping approval job with unexpected payload", zap.String("job_id", job.ID), zap.String("payload", fmt.Sprintf("%T", job.Payload)))
		return nil
	}

	if h.letters != nil {
		if _, err := h.letters.Ensure(ctx, event.CandidateID); err != nil {
			return fmt.Errorf("render letter for %s: %w", event.NIM, err)
		}
	}
	if h.publisher != nil {
		if err := h.publisher.Publish(ctx, event.NIM, event); err != nil {
			return fmt.Errorf("publish %s: %w", event.NIM, err)
		}
	}

	h.logger.Info("approval event processed",
		zap.String("job_id", job.ID), zap.String("candidate_id", event.CandidateID), zap.String("nim", event.NIM), zap.Int("attempt", job.Attempt))
	return nil
}
