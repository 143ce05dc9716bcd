package dto

import "time"

// RegisterCandidateRequest is the registration payload. Either ProgramCode or ProgramID
// identifies the program applied to.
type RegisterCandidateRequest struct {
	FullName      string  `json:"full_name" validate:"required,max=150"`
	Email         string  `json:"email" validate:"required,email"`
	Phone         string  `json:"phone" validate:"required,idphone"`
	BirthDate     string  `json:"birth_date" validate:"required,datetime=2006-01-02"`
	Address       *string `json:"address,omitempty" validate:"omitempty,max=500"`
	ProgramCode   string  `json:"program_code" validate:"required_without=ProgramID"`
	ProgramID     string  `json:"program_id" validate:"required_without=ProgramCode"`
	AdmissionPath string  `json:"admission_path" validate:"required,oneof=SNBP SNBT Mandiri"`
}

// Actor identifies who triggered an administrative action.
type Actor struct {
	UserID    string
	IP        string
	UserAgent string
}

// ApprovalResult is returned by an approval, including the idempotent replay case.
type ApprovalResult struct {
	CandidateID     string    `json:"candidate_id"`
	NIM             string    `json:"nim"`
	Status          string    `json:"status"`
	ApprovedAt      time.Time `json:"approved_at"`
	AlreadyApproved bool      `json:"already_approved"`
}

// CandidateStatus is the public view of an application, cached by candidate id.
type CandidateStatus struct {
	ID            string     `json:"id"`
	FullName      string     `json:"full_name"`
	ProgramCode   string     `json:"program_code"`
	ProgramName   string     `json:"program_name"`
	AdmissionPath string     `json:"admission_path"`
	Status        string     `json:"status"`
	NIM           *string    `json:"nim"`
	ApprovedAt    *time.Time `json:"approved_at"`
	RegisteredAt  time.Time  `json:"registered_at"`
}

// LetterLink points to a signed admission letter download.
type LetterLink struct {
	CandidateID string    `json:"candidate_id"`
	NIM         string    `json:"nim"`
	URL         string    `json:"url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
