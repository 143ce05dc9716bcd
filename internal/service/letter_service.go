package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/models"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/export"
	"github.com/noah-isme/pmb-api/pkg/storage"
)

type candidateFinder interface {
	FindByID(ctx context.Context, id string) (*models.CandidateDetail, error)
}

type letterRenderer interface {
	Render(letter export.Letter) ([]byte, error)
}

type letterStore interface {
	Save(name string, data []byte) (string, error)
	Open(name string) (io.ReadCloser, error)
	Exists(name string) (bool, error)
}

type letterSigner interface {
	Generate(subject, relPath string) (string, time.Time, error)
	Parse(token string) (subject, relPath string, expiresAt time.Time, err error)
}

// LetterConfig configures where download links point.
type LetterConfig struct {
	DownloadPath string
}

// LetterService renders admission letters for approved candidates and hands out
// signed, expiring download links.
type LetterService struct {
	candidates candidateFinder
	renderer   letterRenderer
	store      letterStore
	signer     letterSigner
	audit      auditRecorder
	logger     *zap.Logger
	config     LetterConfig
}

// NewLetterService constructs a LetterService. audit may be nil.
func NewLetterService(candidates candidateFinder, renderer letterRenderer, store letterStore, signer letterSigner, audit auditRecorder, logger *zap.Logger, cfg LetterConfig) *LetterService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DownloadPath == "" {
		cfg.DownloadPath = "/api/v1/letters/download"
	}
	return &LetterService{candidates: candidates, renderer: renderer, store: store, signer: signer, audit: audit, logger: logger, config: cfg}
}

// LetterFileName is the storage name of the letter for a NIM.
func LetterFileName(nim string) string {
	return nim + ".pdf"
}

// Ensure renders and stores the letter of an approved candidate unless it exists.
func (s *LetterService) Ensure(ctx context.Context, candidateID string) (string, error) {
	candidate, err := s.approvedCandidate(ctx, candidateID)
	if err != nil {
		return "", err
	}
	return s.ensure(candidate)
}

func (s *LetterService) ensure(candidate *models.CandidateDetail) (string, error) {
	name := LetterFileName(*candidate.NIM)
	exists, err := s.store.Exists(name)
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check letter")
	}
	if exists {
		return name, nil
	}

	pdf, err := s.renderer.Render(export.Letter{
		FullName:      candidate.FullName,
		NIM:           *candidate.NIM,
		ProgramName:   candidate.ProgramName,
		ProgramCode:   candidate.ProgramCode,
		Faculty:       candidate.Faculty,
		AdmissionPath: string(candidate.AdmissionPath),
		ApprovedAt:    *candidate.ApprovedAt,
	})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render letter")
	}
	if _, err := s.store.Save(name, pdf); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store letter")
	}
	s.logger.Info("admission letter stored", zap.String("candidate_id", candidate.ID), zap.String("nim", *candidate.NIM))
	return name, nil
}

// Link returns a signed download link for the candidate's letter, rendering it first
// when it is missing.
func (s *LetterService) Link(ctx context.Context, candidateID string, actor dto.Actor) (*dto.LetterLink, error) {
	candidate, err := s.approvedCandidate(ctx, candidateID)
	if err != nil {
		return nil, err
	}
	name, err := s.ensure(candidate)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(candidate.ID, name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign letter link")
	}

	if s.audit != nil {
		values, _ := json.Marshal(map[string]string{"nim": *candidate.NIM})
		entry := &models.AuditLog{
			Action:     models.AuditActionLetterIssue,
			Resource:   models.AuditResourceCandidate,
			ResourceID: &candidate.ID,
			NewValues:  values,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		}
		if actor.UserID != "" {
			entry.UserID = &actor.UserID
		}
		if err := s.audit.Record(ctx, nil, entry); err != nil {
			s.logger.Warn("failed to record letter audit log", zap.String("candidate_id", candidate.ID), zap.Error(err))
		}
	}

	return &dto.LetterLink{
		CandidateID: candidate.ID,
		NIM:         *candidate.NIM,
		URL:         s.config.DownloadPath + "?token=" + url.QueryEscape(token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Open verifies a download token and opens the letter it points to. The caller
// closes the returned reader.
func (s *LetterService) Open(ctx context.Context, token string) (io.ReadCloser, string, error) {
	_, name, _, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrForbidden, "invalid download link")
	}
	file, err := s.store.Open(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "letter not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open letter")
	}
	return file, name, nil
}

func (s *LetterService) approvedCandidate(ctx context.Context, id string) (*models.CandidateDetail, error) {
	candidate, err := s.candidates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "candidate not found")
		}
		return nil, storeError(err, "failed to load candidate")
	}
	if candidate.Status != models.CandidateStatusApproved || candidate.NIM == nil || candidate.ApprovedAt == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidStateTransition, "letters are only issued to approved candidates")
	}
	return candidate, nil
}
