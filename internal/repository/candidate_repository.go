package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pmb-api/internal/models"
	"github.com/noah-isme/pmb-api/pkg/database"
)

const (
	nimUniqueConstraint   = "candidates_nim_key"
	emailUniqueConstraint = "candidates_email_lower_key"
	approvalSavepoint     = "candidate_approval"
)

const candidateDetailColumns = `c.id, c.full_name, c.email, c.phone, c.birth_date, c.address, c.program_id, c.admission_path,
c.status, c.nim, c.approved_at, c.created_at, c.updated_at, p.code AS program_code, p.name AS program_name, p.faculty`

// CandidateRepository persists candidate applications.
type CandidateRepository struct {
	db *sqlx.DB
}

// NewCandidateRepository constructs the repository.
func NewCandidateRepository(db *sqlx.DB) *CandidateRepository {
	return &CandidateRepository{db: db}
}

// FindByID returns the candidate joined with its program.
func (r *CandidateRepository) FindByID(ctx context.Context, id string) (*models.CandidateDetail, error) {
	query := `SELECT ` + candidateDetailColumns + ` FROM candidates c JOIN programs p ON p.id = c.program_id WHERE c.id = $1`
	var candidate models.CandidateDetail
	if err := r.db.GetContext(ctx, &candidate, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, unavailable("find candidate by id", err)
	}
	return &candidate, nil
}

// LockByID reads the candidate and holds its row lock until q's transaction ends.
func (r *CandidateRepository) LockByID(ctx context.Context, q sqlx.ExtContext, id string) (*models.CandidateDetail, error) {
	query := `SELECT ` + candidateDetailColumns + ` FROM candidates c JOIN programs p ON p.id = c.program_id WHERE c.id = $1 FOR UPDATE OF c`
	var candidate models.CandidateDetail
	if err := sqlx.GetContext(ctx, r.ext(q), &candidate, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, unavailable("lock candidate", err)
	}
	return &candidate, nil
}

// ExistsByEmail reports whether an application with the email exists, ignoring case.
func (r *CandidateRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM candidates WHERE LOWER(email) = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, models.NormalizeEmail(email)); err != nil {
		return false, unavailable("check candidate email", err)
	}
	return exists, nil
}

// Create inserts a pending candidate.
func (r *CandidateRepository) Create(ctx context.Context, candidate *models.Candidate) error {
	if candidate.ID == "" {
		candidate.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = now
	}
	candidate.UpdatedAt = now
	if candidate.Status == "" {
		candidate.Status = models.CandidateStatusPending
	}

	const query = `INSERT INTO candidates (id, full_name, email, phone, birth_date, address, program_id, admission_path, status, nim, approved_at, created_at, updated_at)
VALUES (:id, :full_name, :email, :phone, :birth_date, :address, :program_id, :admission_path, :status, :nim, :approved_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, candidate); err != nil {
		if constraint, ok := database.UniqueViolation(err); ok && (constraint == emailUniqueConstraint || constraint == "") {
			return fmt.Errorf("create candidate: %w", ErrDuplicateEmail)
		}
		return unavailable("create candidate", err)
	}
	return nil
}

// PersistApproval moves a pending candidate to approved with the given NIM.
//
// The update runs inside a savepoint so that a NIM uniqueness violation leaves the
// enclosing transaction usable: the caller can draw another sequence and try again.
func (r *CandidateRepository) PersistApproval(ctx context.Context, q sqlx.ExtContext, id, nim string, approvedAt time.Time) error {
	q = r.ext(q)
	if _, err := q.ExecContext(ctx, "SAVEPOINT "+approvalSavepoint); err != nil {
		return unavailable("open approval savepoint", err)
	}

	const query = `UPDATE candidates SET status = $2, nim = $3, approved_at = $4, updated_at = $4 WHERE id = $1 AND status = $5`
	res, err := q.ExecContext(ctx, query, id, models.CandidateStatusApproved, nim, approvedAt, models.CandidateStatusPending)
	if err != nil {
		if _, rbErr := q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+approvalSavepoint); rbErr != nil {
			return unavailable("rollback approval savepoint", rbErr)
		}
		if constraint, ok := database.UniqueViolation(err); ok && (constraint == nimUniqueConstraint || constraint == "") {
			return fmt.Errorf("persist approval %s: %w", nim, ErrDuplicateNIM)
		}
		return unavailable("persist approval", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("persist approval", err)
	}
	if _, err := q.ExecContext(ctx, "RELEASE SAVEPOINT "+approvalSavepoint); err != nil {
		return unavailable("release approval savepoint", err)
	}
	if affected == 0 {
		return ErrCandidateNotPending
	}
	return nil
}

// List returns candidates matching the filter with the total count.
func (r *CandidateRepository) List(ctx context.Context, filter models.CandidateFilter) ([]models.CandidateDetail, int, error) {
	baseQuery := `FROM candidates c JOIN programs p ON p.id = c.program_id WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("c.status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if code := models.NormalizeProgramCode(filter.ProgramCode); code != "" {
		conditions = append(conditions, fmt.Sprintf("p.code = $%d", len(args)+1))
		args = append(args, code)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(c.full_name) LIKE $%d OR LOWER(c.email) LIKE $%d OR c.nim LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"created_at":  "c.created_at",
		"full_name":   "c.full_name",
		"approved_at": "c.approved_at",
		"nim":         "c.nim",
	}
	sortBy, ok := allowedSorts[filter.SortBy]
	if !ok {
		sortBy = "c.created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", candidateDetailColumns, baseQuery, sortBy, sortOrder, pageSize, offset)
	var candidates []models.CandidateDetail
	if err := r.db.SelectContext(ctx, &candidates, listQuery, args...); err != nil {
		return nil, 0, unavailable("list candidates", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, unavailable("count candidates", err)
	}
	return candidates, total, nil
}

// ListApproved returns candidates approved in the given UTC year ordered by NIM.
// An empty program code selects every program.
func (r *CandidateRepository) ListApproved(ctx context.Context, year int, programCode string) ([]models.CandidateDetail, error) {
	query := `SELECT ` + candidateDetailColumns + ` FROM candidates c JOIN programs p ON p.id = c.program_id
WHERE c.status = $1 AND EXTRACT(YEAR FROM c.approved_at AT TIME ZONE 'UTC') = $2`
	args := []interface{}{models.CandidateStatusApproved, year}
	if code := models.NormalizeProgramCode(programCode); code != "" {
		query += ` AND p.code = $3`
		args = append(args, code)
	}
	query += ` ORDER BY c.nim ASC`

	var candidates []models.CandidateDetail
	if err := r.db.SelectContext(ctx, &candidates, query, args...); err != nil {
		return nil, unavailable("list approved candidates", err)
	}
	return candidates, nil
}

func (r *CandidateRepository) ext(q sqlx.ExtContext) sqlx.ExtContext {
	if q == nil {
		return r.db
	}
	return q
}
