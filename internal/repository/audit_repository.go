package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pmb-api/internal/models"
)

// AuditRepository writes audit rows, optionally as part of a larger transaction.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record inserts the entry through q, or through the pool when q is nil.
func (r *AuditRepository) Record(ctx context.Context, q sqlx.ExtContext, log *models.AuditLog) error {
	if q == nil {
		q = r.db
	}
	return insertAuditLog(ctx, q, log)
}

func insertAuditLog(ctx context.Context, q sqlx.ExtContext, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, q, query, log); err != nil {
		return unavailable("create audit log", err)
	}
	return nil
}
