package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pmb-api/pkg/database"
)

// Transactor runs units of work inside a single database transaction.
type Transactor struct {
	db *sqlx.DB
}

// NewTransactor constructs a Transactor.
func NewTransactor(db *sqlx.DB) *Transactor {
	return &Transactor{db: db}
}

// WithinTx begins a transaction, runs fn and commits. Any error from fn, or a
// cancelled context, rolls the whole transaction back.
func (t *Transactor) WithinTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := t.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w: %w", ErrStoreUnavailable, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w: %w", ErrStoreUnavailable, err)
	}
	return nil
}

// unavailable tags persistence failures with ErrStoreUnavailable while keeping the cause.
func unavailable(op string, err error) error {
	if database.IsUnavailable(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
