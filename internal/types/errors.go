package types

import "errors"

// Error kinds surfaced by the store and the claim coordinator. Callers match
// them with errors.Is; the wrapped message carries the specifics.
var (
	// ErrValidation is returned when required creation fields are missing.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned for unknown schedule or executive ids.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState is returned for disallowed lifecycle transitions,
	// e.g. completing a schedule that is not currently claimed.
	ErrInvalidState = errors.New("invalid state")
	// ErrAIService wraps any failure of the upstream text generator.
	ErrAIService = errors.New("ai service error")
	// ErrForbidden is returned when a principal's role may not perform an action.
	ErrForbidden = errors.New("forbidden")
)
