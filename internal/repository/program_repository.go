package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pmb-api/internal/models"
)

// ProgramRepository reads and seeds study programs.
type ProgramRepository struct {
	db *sqlx.DB
}

// NewProgramRepository constructs the repository.
func NewProgramRepository(db *sqlx.DB) *ProgramRepository {
	return &ProgramRepository{db: db}
}

// List returns all programs ordered by code.
func (r *ProgramRepository) List(ctx context.Context) ([]models.Program, error) {
	const query = `SELECT id, code, name, faculty, created_at FROM programs ORDER BY code ASC`
	var programs []models.Program
	if err := r.db.SelectContext(ctx, &programs, query); err != nil {
		return nil, unavailable("list programs", err)
	}
	return programs, nil
}

// FindByID returns a program by identifier.
func (r *ProgramRepository) FindByID(ctx context.Context, id string) (*models.Program, error) {
	const query = `SELECT id, code, name, faculty, created_at FROM programs WHERE id = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, unavailable("find program by id", err)
	}
	return &program, nil
}

// FindByCode returns a program by its normalized code.
func (r *ProgramRepository) FindByCode(ctx context.Context, code string) (*models.Program, error) {
	const query = `SELECT id, code, name, faculty, created_at FROM programs WHERE code = $1`
	var program models.Program
	if err := r.db.GetContext(ctx, &program, query, models.NormalizeProgramCode(code)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, unavailable("find program by code", err)
	}
	return &program, nil
}

// CreateIfMissing inserts the program unless its code already exists. It reports
// whether a row was written.
func (r *ProgramRepository) CreateIfMissing(ctx context.Context, program *models.Program) (bool, error) {
	if program.ID == "" {
		program.ID = uuid.NewString()
	}
	program.Code = models.NormalizeProgramCode(program.Code)
	if program.CreatedAt.IsZero() {
		program.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO programs (id, code, name, faculty, created_at) VALUES (:id, :code, :name, :faculty, :created_at) ON CONFLICT (code) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, program)
	if err != nil {
		return false, unavailable("create program", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("create program", err)
	}
	return affected > 0, nil
}
