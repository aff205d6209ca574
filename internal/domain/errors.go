package domain

import "errors"

// Sentinel errors for common error conditions.
var (
	// ErrNotFound indicates that a requested entity was not found.
	ErrNotFound = errors.New("not found")

	// ErrSessionComplete indicates that a session has already finished.
	ErrSessionComplete = errors.New("session already complete")

	// ErrNoPendingCheckpoint indicates there is no checkpoint awaiting a decision.
	ErrNoPendingCheckpoint = errors.New("no pending checkpoint")

	// ErrInvalidDecision indicates a decision that carries no actionable content.
	ErrInvalidDecision = errors.New("invalid decision")

	// ErrSessionNotComplete indicates an operation that needs a finished
	// session, such as export, was attempted on a running one.
	ErrSessionNotComplete = errors.New("session not complete")

	// ErrInvalidInput indicates that the input data is invalid.
	ErrInvalidInput = errors.New("invalid input")
)
