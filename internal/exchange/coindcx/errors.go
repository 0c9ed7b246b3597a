package coindcx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"follow-trading/internal/core"
)

// APIError is the raw error surface of the CoinDCX REST API.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e APIError) Error() string {
	return fmt.Sprintf("coindcx api error: http=%d code=%d message=%q", e.HTTPStatus, e.Code, e.Message)
}

var apiMessageKinds = map[string]error{
	"insufficient funds":       core.ErrInsufficientBalance,
	"insufficient balance":     core.ErrInsufficientBalance,
	"order not found":          core.ErrOrderNotFound,
	"invalid order id":         core.ErrOrderNotFound,
	"order is already closed":  core.ErrOrderNotFound,
	"invalid request":          core.ErrInvalidParameters,
	"quantity is invalid":      core.ErrInvalidParameters,
	"price is invalid":         core.ErrInvalidParameters,
	"order could not be place": core.ErrOrderRejected,
}

// classifyAPIError joins the raw API error with the core sentinel(s) it maps
// onto, so callers match with errors.Is while logs keep the raw detail.
func classifyAPIError(apiErr APIError) error {
	kinds := make([]error, 0, 2)
	switch apiErr.HTTPStatus {
	case http.StatusTooManyRequests:
		kinds = append(kinds, core.ErrRateLimited)
	case http.StatusUnauthorized, http.StatusForbidden:
		kinds = append(kinds, core.ErrAuth)
	case http.StatusNotFound:
		kinds = append(kinds, core.ErrOrderNotFound)
	}
	msg := strings.ToLower(strings.TrimSpace(apiErr.Message))
	for fragment, kind := range apiMessageKinds {
		if strings.Contains(msg, fragment) && !containsErr(kinds, kind) {
			kinds = append(kinds, kind)
		}
	}
	if len(kinds) == 0 {
		return apiErr
	}
	chain := make([]error, 0, 1+len(kinds))
	chain = append(chain, apiErr)
	chain = append(chain, kinds...)
	return errors.Join(chain...)
}

func containsErr(kinds []error, kind error) bool {
	for _, existing := range kinds {
		if existing == kind {
			return true
		}
	}
	return false
}

// AsAPIError unwraps the raw API error from a classified chain.
func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if err == nil || !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
