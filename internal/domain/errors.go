package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure, with no infrastructure dependency. Callers match them
// with errors.Is; every layer wraps with fmt.Errorf("...: %w", err).

var (
	// ErrInvalidInput is a malformed request. Never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAuth is a missing, malformed, expired or wrong credential.
	ErrAuth = errors.New("authentication failed")

	// ErrConflict is a unique-constraint violation on registration or mint.
	ErrConflict = errors.New("already exists")

	// ErrNotFound is an absent principal or token.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientFunds is raised inside an atomic unit when an ordinary
	// principal's balance would go negative. Engines convert it into the
	// "insufficient" status before it reaches a caller.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTransient is store-level contention or abort (SQLITE_BUSY and
	// friends). Safe to retry only for operations carrying a request id.
	ErrTransient = errors.New("transient store failure")

	// ErrRetryDenied wraps ErrTransient for operations without a dedup key:
	// the caller must resubmit manually after checking their balance.
	ErrRetryDenied = errors.New("retry denied, resubmit manually")
)
