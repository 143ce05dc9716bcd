package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/pkg/jobs"
)

type recordingLetters struct {
	ids []string
	err error
}

func (r *recordingLetters) Ensure(ctx context.Context, candidateID string) (string, error) {
	r.ids = append(r.ids, candidateID)
	return "x.pdf", r.err
}

type recordingPublisher struct {
	keys     []string
	payloads []interface{}
	err      error
}

func (r *recordingPublisher) Publish(ctx context.Context, key string, payload interface{}) error {
	if r.err != nil {
		return r.err
	}
	r.keys = append(r.keys, key)
	r.payloads = append(r.payloads, payload)
	return nil
}

func approvalJob() jobs.Job {
	return jobs.Job{ID: "job-1", Type: models.EventAdmissionApproved, Payload: models.AdmissionApprovedEvent{
		Event: models.EventAdmissionApproved, CandidateID: "c1", NIM: "2025TIF0001", ProgramCode: "TIF", Year: 2025,
		ApprovedAt: time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC),
	}}
}

func TestAdmissionEventHandlerRendersAndPublishes(t *testing.T) {
	letters := &recordingLetters{}
	pub := &recordingPublisher{}
	h := NewAdmissionEventHandler(letters, pub, nil)

	require.NoError(t, h.Handle(context.Background(), approvalJob()))
	assert.Equal(t, []string{"c1"}, letters.ids)
	require.Equal(t, []string{"2025TIF0001"}, pub.keys)
	event, ok := pub.payloads[0].(models.AdmissionApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, "TIF", event.ProgramCode)
}

func TestAdmissionEventHandlerReturnsErrorsForRetry(t *testing.T) {
	h := NewAdmissionEventHandler(&recordingLetters{err: errors.New("disk full")}, &recordingPublisher{}, nil)
	assert.Error(t, h.Handle(context.Background(), approvalJob()))

	pub := &recordingPublisher{err: errors.New("broker down")}
	h = NewAdmissionEventHandler(&recordingLetters{}, pub, nil)
	assert.Error(t, h.Handle(context.Background(), approvalJob()))
}

func TestAdmissionEventHandlerIgnoresUnknownJobs(t *testing.T) {
	pub := &recordingPublisher{}
	h := NewAdmissionEventHandler(nil, pub, nil)

	assert.NoError(t, h.Handle(context.Background(), jobs.Job{ID: "x", Type: "other"}))
	assert.NoError(t, h.Handle(context.Background(), jobs.Job{ID: "y", Type: models.EventAdmissionApproved, Payload: "garbage"}))
	assert.Empty(t, pub.keys)
}
