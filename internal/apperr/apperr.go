// Package apperr holds the error kinds surfaced by the ledger and token packages.
// Callers classify with errors.Is; lower layers wrap with %w.
package apperr

import "errors"

var (
	// ErrInvalidAmount is returned for zero, negative or over-precise amounts.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrSelfTransfer is returned when source and destination are the same account.
	ErrSelfTransfer = errors.New("cannot transfer to same account")
	// ErrAccountNotFound is returned when a referenced account does not exist.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds is returned when the locked source balance is below the amount.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrTokenMalformed covers bad structure, bad signature and unexpected algorithms.
	ErrTokenMalformed = errors.New("token malformed")
	// ErrTokenExpired is returned for bearer or ephemeral tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenInvalid is returned for unknown, reused or wrong-purpose ephemeral tokens.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenRevoked is returned when a valid bearer token has been logged out.
	ErrTokenRevoked = errors.New("token revoked")

	ErrWeakCredential     = errors.New("password does not meet strength policy")
	ErrDuplicateIdentity  = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccessDenied       = errors.New("access denied")

	// ErrConflict is returned once concurrent-write retries are exhausted. Safe to retry.
	ErrConflict = errors.New("concurrent update conflict")
	// ErrUnavailable is returned when a required durable store cannot be reached.
	ErrUnavailable = errors.New("dependency unavailable")
)

// IsDomain reports whether err carries one of the kinds above.
func IsDomain(err error) bool {
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var kinds = []error{
	ErrInvalidAmount,
	ErrSelfTransfer,
	ErrAccountNotFound,
	ErrInsufficientFunds,
	ErrTokenMalformed,
	ErrTokenExpired,
	ErrTokenInvalid,
	ErrTokenRevoked,
	ErrWeakCredential,
	ErrDuplicateIdentity,
	ErrInvalidCredentials,
	ErrAccessDenied,
	ErrConflict,
	ErrUnavailable,
}
