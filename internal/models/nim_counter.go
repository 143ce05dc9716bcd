package models

import "time"

const (
	// MinCounterYear and MaxCounterYear bound the four-digit year of a counter key.
	MinCounterYear = 2000
	MaxCounterYear = 9999
	// NIMSequenceWidth is the zero-padded width of the sequence part of a NIM.
	NIMSequenceWidth = 4
	// MaxPaddedSequence is the largest sequence that still fits the padded width.
	MaxPaddedSequence = 9999
)

// NIMCounter tracks the last sequence issued for a (year, program code) key.
type NIMCounter struct {
	Year         int       `db:"year" json:"year"`
	ProgramCode  string    `db:"program_code" json:"program_code"`
	LastSequence int       `db:"last_sequence" json:"last_sequence"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}
