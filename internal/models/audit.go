package models

import "time"

// Audited actions.
const (
	AuditActionLogin            = "LOGIN"
	AuditActionCandidateApprove = "CANDIDATE_APPROVE"
	AuditActionLetterIssue      = "LETTER_ISSUE"
	AuditActionRosterExport     = "ROSTER_EXPORT"
)

// Audited resources.
const (
	AuditResourceAuth      = "auth"
	AuditResourceCandidate = "candidate"
	AuditResourceRoster    = "roster"
)

// AuditLog is an append-only trail entry. OldValues and NewValues hold JSON
// snapshots; an approval records the NIM it assigned in NewValues.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
