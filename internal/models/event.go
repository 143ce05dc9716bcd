package models

import "time"

// EventAdmissionApproved is the event name published after an approval commits.
const EventAdmissionApproved = "admission.approved"

// AdmissionApprovedEvent is the payload carried by approval jobs and broker messages.
type AdmissionApprovedEvent struct {
	Event       string    `json:"event"`
	CandidateID string    `json:"candidate_id"`
	NIM         string    `json:"nim"`
	ProgramCode string    `json:"program_code"`
	Year        int       `json:"year"`
	ApprovedAt  time.Time `json:"approved_at"`
}
