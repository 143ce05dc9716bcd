package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/pmb-api/internal/dto"
	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/internal/repository"
	appErrors "github.com/noah-isme/pmb-api/pkg/errors"
	"github.com/noah-isme/pmb-api/pkg/jobs"
)

// memoryAdmissionStore emulates the transactional store: one transaction at a time,
// and a failed transaction restores the state it started from.
type memoryAdmissionStore struct {
	mu         sync.Mutex
	candidates map[string]models.CandidateDetail
	counters   map[string]int
	nims       map[string]string
	audits     []models.AuditLog
	programs   map[string]models.Program
	auditErr   error
	txCount    int
}

func newMemoryAdmissionStore() *memoryAdmissionStore {
	s := &memoryAdmissionStore{
		candidates: make(map[string]models.CandidateDetail),
		counters:   make(map[string]int),
		nims:       make(map[string]string),
		programs:   make(map[string]models.Program),
	}
	for i, p := range models.DefaultPrograms {
		p.ID = fmt.Sprintf("prog-%d", i+1)
		s.programs[p.ID] = p
	}
	return s
}

func (s *memoryAdmissionStore) program(code string) models.Program {
	for _, p := range s.programs {
		if p.Code == code {
			return p
		}
	}
	panic("unknown program " + code)
}

func (s *memoryAdmissionStore) addCandidate(id, programCode string, status models.CandidateStatus) {
	p := s.program(programCode)
	s.candidates[id] = models.CandidateDetail{
		Candidate: models.Candidate{
			ID: id, FullName: "Candidate " + id, Email: id + "@example.com", Phone: "081234567890",
			ProgramID: p.ID, AdmissionPath: models.AdmissionPathSNBT, Status: status,
			CreatedAt: time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		},
		ProgramCode: p.Code, ProgramName: p.Name, Faculty: p.Faculty,
	}
}

func (s *memoryAdmissionStore) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txCount++

	candidates := make(map[string]models.CandidateDetail, len(s.candidates))
	for k, v := range s.candidates {
		candidates[k] = v
	}
	counters := make(map[string]int, len(s.counters))
	for k, v := range s.counters {
		counters[k] = v
	}
	nims := make(map[string]string, len(s.nims))
	for k, v := range s.nims {
		nims[k] = v
	}
	audits := len(s.audits)

	if err := fn(nil); err != nil {
		s.candidates, s.counters, s.nims, s.audits = candidates, counters, nims, s.audits[:audits]
		return err
	}
	return nil
}

func (s *memoryAdmissionStore) NextSequence(ctx context.Context, q sqlx.ExtContext, year int, programCode string) (int, error) {
	if year < models.MinCounterYear || year > models.MaxCounterYear || programCode == "" {
		return 0, repository.ErrInvalidCounterKey
	}
	key := fmt.Sprintf("%d/%s", year, programCode)
	s.counters[key]++
	return s.counters[key], nil
}

func (s *memoryAdmissionStore) counter(year int, code string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters[fmt.Sprintf("%d/%s", year, code)]
}

func (s *memoryAdmissionStore) FindByID(ctx context.Context, id string) (*models.CandidateDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.candidates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memoryAdmissionStore) LockByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.CandidateDetail, error) {
	c, ok := s.candidates[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &c, nil
}

func (s *memoryAdmissionStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.candidates {
		if strings.EqualFold(c.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (s *memoryAdmissionStore) Create(ctx context.Context, candidate *models.Candidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if candidate.ID == "" {
		candidate.ID = fmt.Sprintf("cand-%d", len(s.candidates)+1)
	}
	candidate.CreatedAt = time.Now().UTC()
	p := s.programs[candidate.ProgramID]
	s.candidates[candidate.ID] = models.CandidateDetail{Candidate: *candidate, ProgramCode: p.Code, ProgramName: p.Name, Faculty: p.Faculty}
	return nil
}

func (s *memoryAdmissionStore) PersistApproval(ctx context.Context, q sqlx.ExtContext, id, nim string, approvedAt time.Time) error {
	if owner, taken := s.nims[nim]; taken && owner != id {
		return fmt.Errorf("persist approval %s: %w", nim, repository.ErrDuplicateNIM)
	}
	c := s.candidates[id]
	if c.Status != models.CandidateStatusPending {
		return repository.ErrCandidateNotPending
	}
	c.Status = models.CandidateStatusApproved
	c.NIM = &nim
	c.ApprovedAt = &approvedAt
	s.candidates[id] = c
	s.nims[nim] = id
	return nil
}

func (s *memoryAdmissionStore) List(ctx context.Context, filter models.CandidateFilter) ([]models.CandidateDetail, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CandidateDetail
	for _, c := range s.candidates {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		out = append(out, c)
	}
	return out, len(out), nil
}

func (s *memoryAdmissionStore) Record(ctx context.Context, q sqlx.ExtContext, log *models.AuditLog) error {
	if s.auditErr != nil {
		return s.auditErr
	}
	s.audits = append(s.audits, *log)
	return nil
}

type memoryProgramLookup struct{ store *memoryAdmissionStore }

func (m memoryProgramLookup) FindByID(ctx context.Context, id string) (*models.Program, error) {
	p, ok := m.store.programs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m memoryProgramLookup) FindByCode(ctx context.Context, code string) (*models.Program, error) {
	for _, p := range m.store.programs {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, sql.ErrNoRows
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

var approvalClock = time.Date(2025, 8, 15, 2, 30, 0, 0, time.UTC)

func newAdmissionFixture(t *testing.T) (*AdmissionService, *memoryAdmissionStore, *recordingQueue) {
	t.Helper()
	store := newMemoryAdmissionStore()
	queue := &recordingQueue{}
	metrics := NewMetricsService()
	allocator, _ := newTestAllocator(store, DefaultRetryPolicy(), metrics)
	svc := NewAdmissionService(AdmissionDeps{
		Tx:         store,
		Candidates: store,
		Programs:   memoryProgramLookup{store: store},
		Allocator:  allocator,
		Audit:      store,
		Events:     queue,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
	}, AdmissionConfig{ApprovalTimeout: 5 * time.Second})
	svc.now = func() time.Time { return approvalClock }
	return svc, store, queue
}

func TestApproveAssignsFirstNIM(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)

	res, err := svc.Approve(context.Background(), "c1", dto.Actor{UserID: "admin-1", IP: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, "2025TIF0001", res.NIM)
	assert.Equal(t, "approved", res.Status)
	assert.Equal(t, approvalClock, res.ApprovedAt)
	assert.False(t, res.AlreadyApproved)

	stored, err := store.FindByID(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, models.CandidateStatusApproved, stored.Status)
	require.NotNil(t, stored.NIM)
	assert.Equal(t, "2025TIF0001", *stored.NIM)

	require.Len(t, store.audits, 1)
	assert.Equal(t, models.AuditActionCandidateApprove, store.audits[0].Action)
	require.NotNil(t, store.audits[0].UserID)
	assert.Equal(t, "admin-1", *store.audits[0].UserID)

	require.Len(t, queue.jobs, 1)
	event, ok := queue.jobs[0].Payload.(models.AdmissionApprovedEvent)
	require.True(t, ok)
	assert.Equal(t, models.EventAdmissionApproved, queue.jobs[0].Type)
	assert.Equal(t, "2025TIF0001", event.NIM)
	assert.Equal(t, 2025, event.Year)
}

func TestApproveSequentialNIMsPerProgram(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	store.addCandidate("c2", "TIF", models.CandidateStatusPending)

	first, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)
	second, err := svc.Approve(context.Background(), "c2", dto.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "2025TIF0001", first.NIM)
	assert.Equal(t, "2025TIF0002", second.NIM)
}

func TestApproveIsIdempotent(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "SI", models.CandidateStatusPending)

	first, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)
	again, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)

	assert.True(t, again.AlreadyApproved)
	assert.Equal(t, first.NIM, again.NIM)
	assert.Equal(t, first.ApprovedAt, again.ApprovedAt)
	assert.Equal(t, 1, store.counter(2025, "SI"))
	assert.Len(t, queue.jobs, 1)
	assert.Len(t, store.audits, 1)
}

func TestApproveRejectedCandidate(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusRejected)

	_, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrInvalidStateTransition)

	stored, _ := store.FindByID(context.Background(), "c1")
	assert.Equal(t, models.CandidateStatusRejected, stored.Status)
	assert.Nil(t, stored.NIM)
	assert.Equal(t, 0, store.counter(2025, "TIF"))
	assert.Empty(t, queue.jobs)
}

func TestApproveMissingCandidate(t *testing.T) {
	svc, _, _ := newAdmissionFixture(t)

	_, err := svc.Approve(context.Background(), "ghost", dto.Actor{})
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Approve(context.Background(), "  ", dto.Actor{})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestApproveSkipsNIMAlreadyHeldElsewhere(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	store.nims["2025TIF0001"] = "imported"

	res, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)
	assert.Equal(t, "2025TIF0002", res.NIM)
	assert.Equal(t, 2, store.counter(2025, "TIF"))
}

func TestApproveExhaustionRollsBackEverything(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	for seq := 1; seq <= 5; seq++ {
		store.nims[FormatNIM(2025, "TIF", seq)] = "imported"
	}

	_, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrAllocationExhausted)

	stored, _ := store.FindByID(context.Background(), "c1")
	assert.Equal(t, models.CandidateStatusPending, stored.Status)
	assert.Nil(t, stored.NIM)
	assert.Equal(t, 0, store.counter(2025, "TIF"))
	assert.Empty(t, store.audits)
	assert.Empty(t, queue.jobs)
}

func TestApproveAuditFailureRollsBack(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	store.auditErr = fmt.Errorf("create audit log: %w", repository.ErrStoreUnavailable)

	_, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	assert.ErrorIs(t, err, appErrors.ErrStoreUnavailable)

	stored, _ := store.FindByID(context.Background(), "c1")
	assert.Equal(t, models.CandidateStatusPending, stored.Status)
	assert.Equal(t, 0, store.counter(2025, "TIF"))
}

func TestApproveSucceedsWhenEnqueueFails(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "MESIN", models.CandidateStatusPending)
	queue.err = fmt.Errorf("queue stopped")

	res, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)
	assert.Equal(t, "2025MESIN0001", res.NIM)
}

func TestApproveConcurrentSameProgramYieldsDistinctSequences(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	const n = 50
	for i := 0; i < n; i++ {
		store.addCandidate(fmt.Sprintf("c%02d", i), "TIF", models.CandidateStatusPending)
	}

	nims := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			res, err := svc.Approve(context.Background(), fmt.Sprintf("c%02d", i), dto.Actor{})
			if err != nil {
				return err
			}
			nims[i] = res.NIM
			return nil
		})
	}
	require.NoError(t, g.Wait())

	sort.Strings(nims)
	for i, nim := range nims {
		assert.Equal(t, FormatNIM(2025, "TIF", i+1), nim)
	}
	assert.Equal(t, n, store.counter(2025, "TIF"))
}

func TestApproveConcurrentDuplicateRequestsAllocateOnce(t *testing.T) {
	svc, store, queue := newAdmissionFixture(t)
	store.addCandidate("c1", "FARM", models.CandidateStatusPending)

	results := make([]*dto.ApprovalResult, 10)
	var g errgroup.Group
	for i := range results {
		i := i
		g.Go(func() error {
			res, err := svc.Approve(context.Background(), "c1", dto.Actor{})
			results[i] = res
			return err
		})
	}
	require.NoError(t, g.Wait())

	fresh := 0
	for _, res := range results {
		assert.Equal(t, "2025FARM0001", res.NIM)
		if !res.AlreadyApproved {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, store.counter(2025, "FARM"))
	assert.Len(t, queue.jobs, 1)
}

func TestApproveProgramsHaveIndependentCounters(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("tif-1", "TIF", models.CandidateStatusPending)
	store.addCandidate("si-1", "SI", models.CandidateStatusPending)
	store.addCandidate("tif-2", "TIF", models.CandidateStatusPending)

	tif1, err := svc.Approve(context.Background(), "tif-1", dto.Actor{})
	require.NoError(t, err)
	si1, err := svc.Approve(context.Background(), "si-1", dto.Actor{})
	require.NoError(t, err)
	tif2, err := svc.Approve(context.Background(), "tif-2", dto.Actor{})
	require.NoError(t, err)

	assert.Equal(t, "2025TIF0001", tif1.NIM)
	assert.Equal(t, "2025SI0001", si1.NIM)
	assert.Equal(t, "2025TIF0002", tif2.NIM)
}

func TestApproveUsesUTCYear(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	jakarta := time.FixedZone("WIB", 7*3600)
	// 2026-01-01 01:00 in Jakarta is still 2025 in UTC.
	svc.now = func() time.Time { return time.Date(2026, 1, 1, 1, 0, 0, 0, jakarta) }

	res, err := svc.Approve(context.Background(), "c1", dto.Actor{})
	require.NoError(t, err)
	assert.Equal(t, "2025TIF0001", res.NIM)
}

func validRegistration() dto.RegisterCandidateRequest {
	return dto.RegisterCandidateRequest{
		FullName:      "  Siti Aminah ",
		Email:         "Siti@Example.com",
		Phone:         "+628123456789",
		BirthDate:     "2006-05-17",
		ProgramCode:   "tif",
		AdmissionPath: "SNBT",
	}
}

func TestRegisterCreatesPendingCandidate(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)

	got, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)
	assert.Equal(t, "Siti Aminah", got.FullName)
	assert.Equal(t, "siti@example.com", got.Email)
	assert.Equal(t, models.CandidateStatusPending, got.Status)
	assert.Equal(t, "TIF", got.ProgramCode)
	assert.Nil(t, got.NIM)
	assert.Len(t, store.candidates, 1)
}

func TestRegisterRejectsDuplicateEmail(t *testing.T) {
	svc, _, _ := newAdmissionFixture(t)
	_, err := svc.Register(context.Background(), validRegistration())
	require.NoError(t, err)

	req := validRegistration()
	req.Email = "SITI@example.COM"
	_, err = svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newAdmissionFixture(t)

	cases := map[string]func(r *dto.RegisterCandidateRequest){
		"bad phone":       func(r *dto.RegisterCandidateRequest) { r.Phone = "0712345678" },
		"short phone":     func(r *dto.RegisterCandidateRequest) { r.Phone = "08123" },
		"bad email":       func(r *dto.RegisterCandidateRequest) { r.Email = "not-an-email" },
		"unknown path":    func(r *dto.RegisterCandidateRequest) { r.AdmissionPath = "Beasiswa" },
		"bad birth date":  func(r *dto.RegisterCandidateRequest) { r.BirthDate = "17-05-2006" },
		"future birth":    func(r *dto.RegisterCandidateRequest) { r.BirthDate = "2099-01-01" },
		"blank name":      func(r *dto.RegisterCandidateRequest) { r.FullName = "   " },
		"no program":      func(r *dto.RegisterCandidateRequest) { r.ProgramCode = "" },
		"unknown program": func(r *dto.RegisterCandidateRequest) { r.ProgramCode = "XYZ" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRegistration()
			mutate(&req)
			_, err := svc.Register(context.Background(), req)
			assert.ErrorIs(t, err, appErrors.ErrValidation)
		})
	}
}

func TestStatusReturnsNotFound(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)

	status, hit, err := svc.Status(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "pending", status.Status)
	assert.Equal(t, "TIF", status.ProgramCode)

	_, _, err = svc.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestStatusCachesOnlySettledCandidates(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	backend := newMapCache()
	svc.cache = NewCacheService(backend, nil, time.Minute, zap.NewNop(), true)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)
	ctx := context.Background()

	status, hit, err := svc.Status(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "pending", status.Status)
	assert.Empty(t, backend.items)

	_, err = svc.Approve(ctx, "c1", dto.Actor{UserID: "admin-1"})
	require.NoError(t, err)

	status, hit, err = svc.Status(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "approved", status.Status)
	assert.Contains(t, backend.items, repository.CandidateCacheKey("c1"))

	status, hit, err = svc.Status(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, hit)
	require.NotNil(t, status.NIM)
	assert.Equal(t, "2025TIF0001", *status.NIM)
}

func TestListRejectsUnknownStatus(t *testing.T) {
	svc, store, _ := newAdmissionFixture(t)
	store.addCandidate("c1", "TIF", models.CandidateStatusPending)

	bogus := models.CandidateStatus("archived")
	_, _, err := svc.List(context.Background(), models.CandidateFilter{Status: &bogus})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	pending := models.CandidateStatusPending
	items, page, err := svc.List(context.Background(), models.CandidateFilter{Status: &pending})
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.Equal(t, 1, page.TotalCount)
	assert.Equal(t, 20, page.PageSize)
}
