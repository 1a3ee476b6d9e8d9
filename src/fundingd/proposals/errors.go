package proposals

import "errors"

var (
	// ErrPermissionDenied: the acting user lacks the required capability.
	// The operation is a no-op; nothing is persisted.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation: malformed input, rejected before any side effect.
	ErrValidation = errors.New("validation failed")

	// ErrProvider: an external RPC or API call failed. Local state is never
	// corrupted; the call site decides whether to degrade or surface it.
	ErrProvider = errors.New("provider error")

	// ErrInsufficientFunds: a withdrawal exceeds the spendable remainder.
	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrNotFound = errors.New("proposal not found")
)
