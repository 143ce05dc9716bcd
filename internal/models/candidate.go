package models

import (
	"strings"
	"time"
)

// CandidateStatus enumerates the admission lifecycle states.
type CandidateStatus string

const (
	CandidateStatusPending  CandidateStatus = "pending"
	CandidateStatusApproved CandidateStatus = "approved"
	CandidateStatusRejected CandidateStatus = "rejected"
)

// AdmissionPath is the selection track a candidate applied through.
type AdmissionPath string

const (
	AdmissionPathSNBP    AdmissionPath = "SNBP"
	AdmissionPathSNBT    AdmissionPath = "SNBT"
	AdmissionPathMandiri AdmissionPath = "Mandiri"
)

// AdmissionPaths lists the accepted tracks in display order.
var AdmissionPaths = []AdmissionPath{AdmissionPathSNBP, AdmissionPathSNBT, AdmissionPathMandiri}

// Candidate is a prospective student application. NIM and ApprovedAt are set
// together with the approved status and never afterwards.
type Candidate struct {
	ID            string          `db:"id" json:"id"`
	FullName      string          `db:"full_name" json:"full_name"`
	Email         string          `db:"email" json:"email"`
	Phone         string          `db:"phone" json:"phone"`
	BirthDate     time.Time       `db:"birth_date" json:"birth_date"`
	Address       *string         `db:"address" json:"address,omitempty"`
	ProgramID     string          `db:"program_id" json:"program_id"`
	AdmissionPath AdmissionPath   `db:"admission_path" json:"admission_path"`
	Status        CandidateStatus `db:"status" json:"status"`
	NIM           *string         `db:"nim" json:"nim"`
	ApprovedAt    *time.Time      `db:"approved_at" json:"approved_at"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
}

// CandidateDetail joins the candidate with its program.
type CandidateDetail struct {
	Candidate
	ProgramCode string `db:"program_code" json:"program_code"`
	ProgramName string `db:"program_name" json:"program_name"`
	Faculty     string `db:"faculty" json:"faculty"`
}

// CandidateFilter captures listing criteria.
type CandidateFilter struct {
	Status      *CandidateStatus
	ProgramCode string
	Search      string
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// IsTerminal reports whether no further transition can leave the status.
func (s CandidateStatus) IsTerminal() bool {
	return s == CandidateStatusApproved || s == CandidateStatusRejected
}

// IsValidCandidateStatus reports whether the value is a known status.
func IsValidCandidateStatus(status string) bool {
	switch CandidateStatus(status) {
	case CandidateStatusPending, CandidateStatusApproved, CandidateStatusRejected:
		return true
	}
	return false
}

// NormalizeEmail trims and lowercases an email for duplicate detection.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
