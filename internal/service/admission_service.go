package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/internal/repository"
	"github.com/noah-isme/pmb-api/pkg/database"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/jobs"
)

type candidateRepository interface {
	FindByID(ctx context.Context, id string) (*models.CandidateDetail, error)
	LockByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.CandidateDetail, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Create(ctx context.Context, candidate *models.Candidate) error
	PersistApproval(ctx context.Context, q sqlx.ExtContext, id, nim string, approvedAt time.Time) error
	List(ctx context.Context, filter models.CandidateFilter) ([]models.CandidateDetail, int, error)
}

type programLookup interface {
	FindByID(ctx context.Context, id string) (*models.Program, error)
	FindByCode(ctx context.Context, code string) (*models.Program, error)
}

type auditRecorder interface {
	Record(ctx context.Context, q sqlx.ExtContext, log *models.AuditLog) error
}

type txRunner interface {
	WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error
}

type nimAllocator interface {
	Allocate(ctx context.Context, q sqlx.ExtContext, year int, programCode string, assign func(nim string) error) (*Allocation, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// AdmissionConfig tunes the approval flow.
type AdmissionConfig struct {
	ApprovalTimeout time.Duration
	StatusCacheTTL  time.Duration
}

// AdmissionService covers registration, status lookups and approval of candidates.
type AdmissionService struct {
	tx         txRunner
	candidates candidateRepository
	programs   programLookup
	allocator  nimAllocator
	audit      auditRecorder
	cache      *CacheService
	events     jobEnqueuer
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	config     AdmissionConfig
	now        func() time.Time
}

// AdmissionDeps groups the collaborators of AdmissionService.
type AdmissionDeps struct {
	Tx         txRunner
	Candidates candidateRepository
	Programs   programLookup
	Allocator  nimAllocator
	Audit      auditRecorder
	Cache      *CacheService
	Events     jobEnqueuer
	Metrics    *MetricsService
	Validator  *validator.Validate
	Logger     *zap.Logger
}

// NewAdmissionService constructs the service. Cache, Events and Metrics are optional.
func NewAdmissionService(deps AdmissionDeps, cfg AdmissionConfig) *AdmissionService {
	validate := deps.Validator
	if validate == nil {
		validate = validator.New()
	}
	registerAdmissionValidations(validate)
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AdmissionService{
		tx:         deps.Tx,
		candidates: deps.Candidates,
		programs:   deps.Programs,
		allocator:  deps.Allocator,
		audit:      deps.Audit,
		cache:      deps.Cache,
		events:     deps.Events,
		metrics:    deps.Metrics,
		validator:  validate,
		logger:     logger,
		config:     cfg,
		now:        time.Now,
	}
}

// Register validates and stores a new pending application.
func (s *AdmissionService) Register(ctx context.Context, req dto.RegisterCandidateRequest) (*models.CandidateDetail, error) {
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = models.NormalizeEmail(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.ProgramCode = models.NormalizeProgramCode(req.ProgramCode)
	req.ProgramID = strings.TrimSpace(req.ProgramID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}

	birthDate, err := time.Parse("2006-01-02", req.BirthDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "birth_date must use YYYY-MM-DD")
	}
	if !birthDate.Before(s.now().UTC()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "birth_date must be in the past")
	}

	program, err := s.resolveProgram(ctx, req.ProgramID, req.ProgramCode)
	if err != nil {
		return nil, err
	}

	exists, err := s.candidates.ExistsByEmail(ctx, req.Email)
	if err != nil {
		return nil, storeError(err, "failed to check email")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	}

	var address *string
	if req.Address != nil {
		if trimmed := strings.TrimSpace(*req.Address); trimmed != "" {
			address = &trimmed
		}
	}

	candidate := &models.Candidate{
		FullName:      req.FullName,
		Email:         req.Email,
		Phone:         req.Phone,
		BirthDate:     birthDate,
		Address:       address,
		ProgramID:     program.ID,
		AdmissionPath: models.AdmissionPath(req.AdmissionPath),
		Status:        models.CandidateStatusPending,
	}
	if err := s.candidates.Create(ctx, candidate); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
		}
		return nil, storeError(err, "failed to register candidate")
	}

	s.logger.Info("candidate registered",
		zap.String("candidate_id", candidate.ID), zap.String("program_code", program.Code), zap.String("admission_path", req.AdmissionPath))

	return &models.CandidateDetail{
		Candidate:   *candidate,
		ProgramCode: program.Code,
		ProgramName: program.Name,
		Faculty:     program.Faculty,
	}, nil
}

func (s *AdmissionService) resolveProgram(ctx context.Context, id, code string) (*models.Program, error) {
	var (
		program *models.Program
		err     error
	)
	if id != "" {
		program, err = s.programs.FindByID(ctx, id)
	} else {
		program, err = s.programs.FindByCode(ctx, code)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "program not found")
		}
		return nil, storeError(err, "failed to load program")
	}
	if id != "" && code != "" && program.Code != code {
		return nil, appErrors.Clone(appErrors.ErrValidation, "program_id and program_code refer to different programs")
	}
	return program, nil
}

// Get returns the full candidate record.
func (s *AdmissionService) Get(ctx context.Context, id string) (*models.CandidateDetail, error) {
	candidate, err := s.candidates.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "candidate not found")
		}
		return nil, storeError(err, "failed to load candidate")
	}
	return candidate, nil
}

// Status returns the public status view, served from cache when possible. The
// boolean reports a cache hit.
func (s *AdmissionService) Status(ctx context.Context, id string) (*dto.CandidateStatus, bool, error) {
	key := repository.CandidateCacheKey(id)
	var cached dto.CandidateStatus
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, true, nil
	}

	candidate, err := s.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	status := toCandidateStatus(candidate)
	// A pending read can race a committing approval and outlive its invalidation.
	if candidate.Status.IsTerminal() {
		_ = s.cache.Set(ctx, key, status, s.config.StatusCacheTTL)
	}
	return status, false, nil
}

// List returns candidates with pagination metadata.
func (s *AdmissionService) List(ctx context.Context, filter models.CandidateFilter) ([]models.CandidateDetail, *models.Pagination, error) {
	if filter.Status != nil && !models.IsValidCandidateStatus(string(*filter.Status)) {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown status filter")
	}
	candidates, total, err := s.candidates.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "failed to list candidates")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return candidates, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Approve moves a pending candidate to approved and assigns its NIM in one transaction.
// Approving an already approved candidate returns the existing NIM without allocating.
func (s *AdmissionService) Approve(ctx context.Context, candidateID string, actor dto.Actor) (*dto.ApprovalResult, error) {
	candidateID = strings.TrimSpace(candidateID)
	if candidateID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "candidate id is required")
	}
	if s.config.ApprovalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ApprovalTimeout)
		defer cancel()
	}

	start := time.Now()
	var (
		result *dto.ApprovalResult
		event  *models.AdmissionApprovedEvent
	)
	err := s.tx.WithinTx(ctx, func(tx *sqlx.Tx) error {
		candidate, err := s.candidates.LockByID(ctx, tx, candidateID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "candidate not found")
			}
			return err
		}

		switch candidate.Status {
		case models.CandidateStatusApproved:
			result = &dto.ApprovalResult{CandidateID: candidate.ID, Status: string(candidate.Status), AlreadyApproved: true}
			if candidate.NIM != nil {
				result.NIM = *candidate.NIM
			}
			if candidate.ApprovedAt != nil {
				result.ApprovedAt = *candidate.ApprovedAt
			}
			return nil
		case models.CandidateStatusPending:
		default:
			return appErrors.Clone(appErrors.ErrInvalidStateTransition, "candidate in status "+string(candidate.Status)+" cannot be approved")
		}

		approvedAt := s.now().UTC()
		allocation, err := s.allocator.Allocate(ctx, tx, approvedAt.Year(), candidate.ProgramCode, func(nim string) error {
			return s.candidates.PersistApproval(ctx, tx, candidate.ID, nim, approvedAt)
		})
		if err != nil {
			return err
		}

		newValues, _ := json.Marshal(map[string]interface{}{"status": models.CandidateStatusApproved, "nim": allocation.NIM})
		entry := &models.AuditLog{
			Action:     models.AuditActionCandidateApprove,
			Resource:   models.AuditResourceCandidate,
			ResourceID: &candidate.ID,
			OldValues:  []byte(`{"status":"pending"}`),
			NewValues:  newValues,
			IPAddress:  actor.IP,
			UserAgent:  actor.UserAgent,
		}
		if actor.UserID != "" {
			entry.UserID = &actor.UserID
		}
		if err := s.audit.Record(ctx, tx, entry); err != nil {
			return err
		}

		result = &dto.ApprovalResult{
			CandidateID: candidate.ID,
			NIM:         allocation.NIM,
			Status:      string(models.CandidateStatusApproved),
			ApprovedAt:  approvedAt,
		}
		event = &models.AdmissionApprovedEvent{
			Event:       models.EventAdmissionApproved,
			CandidateID: candidate.ID,
			NIM:         allocation.NIM,
			ProgramCode: allocation.ProgramCode,
			Year:        allocation.Year,
			ApprovedAt:  approvedAt,
		}
		return nil
	})
	if err != nil {
		appErr := approvalError(err)
		s.metrics.ObserveApproval(strings.ToLower(appErr.Code), time.Since(start))
		s.logger.Warn("candidate approval failed", zap.String("candidate_id", candidateID), zap.String("code", appErr.Code), zap.Error(err))
		return nil, appErr
	}

	if result.AlreadyApproved {
		s.metrics.ObserveApproval("already_approved", time.Since(start))
		return result, nil
	}

	s.metrics.ObserveApproval("approved", time.Since(start))
	s.logger.Info("candidate approved",
		zap.String("candidate_id", result.CandidateID), zap.String("nim", result.NIM), zap.String("actor", actor.UserID))
	s.afterApproval(ctx, event)
	return result, nil
}

// afterApproval runs side effects of a committed approval. Failures are logged only.
func (s *AdmissionService) afterApproval(ctx context.Context, event *models.AdmissionApprovedEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()

	_ = s.cache.Delete(ctx, repository.CandidateCacheKey(event.CandidateID))

	if s.events == nil {
		return
	}
	job := jobs.Job{ID: uuid.NewString(), Type: models.EventAdmissionApproved, Payload: *event}
	if err := s.events.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue approval job", zap.String("candidate_id", event.CandidateID), zap.String("nim", event.NIM), zap.Error(err))
	}
}

func toCandidateStatus(c *models.CandidateDetail) *dto.CandidateStatus {
	return &dto.CandidateStatus{
		ID:            c.ID,
		FullName:      c.FullName,
		ProgramCode:   c.ProgramCode,
		ProgramName:   c.ProgramName,
		AdmissionPath: string(c.AdmissionPath),
		Status:        string(c.Status),
		NIM:           c.NIM,
		ApprovedAt:    c.ApprovedAt,
		RegisteredAt:  c.CreatedAt,
	}
}

// approvalError maps failures inside the approval transaction onto the public error kinds.
func approvalError(err error) *appErrors.Error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, repository.ErrCandidateNotPending) {
		return appErrors.WrapAs(err, appErrors.ErrInvalidStateTransition, "candidate is no longer pending")
	}
	return storeError(err, "failed to approve candidate")
}

// storeError classifies a repository failure as StoreUnavailable or Internal.
func storeError(err error, message string) *appErrors.Error {
	if errors.Is(err, repository.ErrStoreUnavailable) || database.IsUnavailable(err) {
		return appErrors.WrapAs(err, appErrors.ErrStoreUnavailable, "")
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, message)
}
