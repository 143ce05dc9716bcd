package repository

import "errors"

// Sentinel errors returned by repositories; services translate them into pkg/errors values.
var (
	// ErrStoreUnavailable marks connection loss, timeouts and cancellation.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidCounterKey rejects a counter key outside the accepted year range or with an empty program code.
	ErrInvalidCounterKey = errors.New("invalid nim counter key")
	// ErrDuplicateNIM reports that another candidate already holds the NIM being assigned.
	ErrDuplicateNIM = errors.New("nim already assigned")
	// ErrDuplicateEmail reports that the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")
	// ErrCandidateNotPending reports that an approval update matched no pending row.
	ErrCandidateNotPending = errors.New("candidate is not pending")
)
