package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes and user messages.
var (
	ErrAccountAlreadyExists = errors.New("account_already_exists")
	ErrAccountNotFound      = errors.New("account_not_found")
	ErrInvalidSymbol        = errors.New("invalid_symbol")
	ErrInsufficientFunds    = errors.New("insufficient_funds")
	ErrNoPosition           = errors.New("no_position")
	ErrInsufficientShares   = errors.New("insufficient_shares")
	ErrInconsistentLedger   = errors.New("inconsistent_ledger")
	ErrQuoteUnavailable     = errors.New("quote_unavailable")
	ErrStorageUnavailable   = errors.New("storage_unavailable")
)

// ValidationError represents an invalid input, such as a non-positive
// share count.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// KindInvalidInput is the kind reported for *ValidationError.
const KindInvalidInput = "invalid_input"

var kinds = []error{
	ErrAccountAlreadyExists,
	ErrAccountNotFound,
	ErrInvalidSymbol,
	ErrInsufficientFunds,
	ErrNoPosition,
	ErrInsufficientShares,
	ErrInconsistentLedger,
	ErrQuoteUnavailable,
	ErrStorageUnavailable,
}

// Kind returns the stable error kind code for err, or "" when err does not
// belong to the domain taxonomy.
func Kind(err error) string {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return KindInvalidInput
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return ""
}

// IsRetryable reports whether err is a transient unavailability the caller
// may retry. The core never retries internally.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrQuoteUnavailable) || errors.Is(err, ErrStorageUnavailable)
}
