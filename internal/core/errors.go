package core

import "errors"

var (
	// ErrInvalidParameters indicates a caller error; surfaced immediately, never retried.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInvalidQuote indicates a degenerate orderbook snapshot; callers hold for a cycle.
	ErrInvalidQuote = errors.New("invalid quote")
	// ErrSessionNotFound indicates the session id is unknown or not owned by the caller.
	ErrSessionNotFound = errors.New("session not found")
	// ErrOrderNotFound indicates the order does not exist on the exchange.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderRejected indicates the order was rejected by the exchange.
	ErrOrderRejected = errors.New("order rejected")
	// ErrInsufficientBalance indicates the exchange rejected the action due to insufficient funds.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrRateLimited indicates the exchange throttled the request; retryable with backoff.
	ErrRateLimited = errors.New("rate limited")
	// ErrAuth indicates the exchange refused the credentials; not retryable.
	ErrAuth = errors.New("authentication failed")
)

// Transient reports whether err is a throttle or network-style failure worth
// retrying with backoff. Caller errors and exchange rejections are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrRateLimited):
		return true
	case errors.Is(err, ErrAuth),
		errors.Is(err, ErrOrderRejected),
		errors.Is(err, ErrInsufficientBalance),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrInvalidParameters),
		errors.Is(err, ErrInvalidQuote):
		return false
	}
	return true
}
