package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pmb-api/internal/models"
)

// NIMCounterRepository owns the per-(year, program code) sequence rows.
type NIMCounterRepository struct {
	db *sqlx.DB
}

// NewNIMCounterRepository constructs the repository.
func NewNIMCounterRepository(db *sqlx.DB) *NIMCounterRepository {
	return &NIMCounterRepository{db: db}
}

// The upsert takes the row lock on the counter (inserting it when absent) and holds
// it until the surrounding transaction ends, so callers on the same key serialize
// while other keys proceed independently.
const nextSequenceQuery = `INSERT INTO nim_counters (year, program_code, last_sequence, updated_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (year, program_code)
DO UPDATE SET last_sequence = nim_counters.last_sequence + 1, updated_at = EXCLUDED.updated_at
RETURNING last_sequence`

// NextSequence increments the counter for the key and returns the new value. It must run
// inside the caller's transaction: rolling that transaction back also undoes the increment.
func (r *NIMCounterRepository) NextSequence(ctx context.Context, q sqlx.ExtContext, year int, programCode string) (int, error) {
	code, err := normalizeCounterKey(year, programCode)
	if err != nil {
		return 0, err
	}
	if q == nil {
		q = r.db
	}

	var seq int
	if err := sqlx.GetContext(ctx, q, &seq, nextSequenceQuery, year, code, time.Now().UTC()); err != nil {
		return 0, unavailable(fmt.Sprintf("next nim sequence %d/%s", year, code), err)
	}
	return seq, nil
}

// Get returns the counter for a key, or sql.ErrNoRows when nothing was issued yet.
func (r *NIMCounterRepository) Get(ctx context.Context, year int, programCode string) (*models.NIMCounter, error) {
	code, err := normalizeCounterKey(year, programCode)
	if err != nil {
		return nil, err
	}
	const query = `SELECT year, program_code, last_sequence, updated_at FROM nim_counters WHERE year = $1 AND program_code = $2`
	var counter models.NIMCounter
	if err := r.db.GetContext(ctx, &counter, query, year, code); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, unavailable("get nim counter", err)
	}
	return &counter, nil
}

// List returns all counters of a year ordered by program code.
func (r *NIMCounterRepository) List(ctx context.Context, year int) ([]models.NIMCounter, error) {
	const query = `SELECT year, program_code, last_sequence, updated_at FROM nim_counters WHERE year = $1 ORDER BY program_code ASC`
	var counters []models.NIMCounter
	if err := r.db.SelectContext(ctx, &counters, query, year); err != nil {
		return nil, unavailable("list nim counters", err)
	}
	return counters, nil
}

func normalizeCounterKey(year int, programCode string) (string, error) {
	if year < models.MinCounterYear || year > models.MaxCounterYear {
		return "", fmt.Errorf("%w: year %d must be a four-digit year", ErrInvalidCounterKey, year)
	}
	code := models.NormalizeProgramCode(programCode)
	if code == "" {
		return "", fmt.Errorf("%w: program code must not be empty", ErrInvalidCounterKey)
	}
	return code, nil
}
