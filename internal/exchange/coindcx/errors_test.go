package coindcx

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"follow-trading/internal/core"
)

func TestClassifyAPIError(t *testing.T) {
	cases := []struct {
		name    string
		apiErr  APIError
		want    error
		wantRaw bool
	}{
		{
			name:   "rate limited by status",
			apiErr: APIError{HTTPStatus: http.StatusTooManyRequests},
			want:   core.ErrRateLimited,
		},
		{
			name:   "unauthorized",
			apiErr: APIError{HTTPStatus: http.StatusUnauthorized, Message: "Invalid credentials"},
			want:   core.ErrAuth,
		},
		{
			name:   "forbidden",
			apiErr: APIError{HTTPStatus: http.StatusForbidden},
			want:   core.ErrAuth,
		},
		{
			name:   "not found by status",
			apiErr: APIError{HTTPStatus: http.StatusNotFound},
			want:   core.ErrOrderNotFound,
		},
		{
			name:   "not found by message",
			apiErr: APIError{HTTPStatus: http.StatusBadRequest, Message: "Order not found"},
			want:   core.ErrOrderNotFound,
		},
		{
			name:   "insufficient funds",
			apiErr: APIError{HTTPStatus: http.StatusUnprocessableEntity, Message: "Insufficient funds to place order"},
			want:   core.ErrInsufficientBalance,
		},
		{
			name:   "invalid quantity",
			apiErr: APIError{HTTPStatus: http.StatusBadRequest, Message: "Quantity is invalid"},
			want:   core.ErrInvalidParameters,
		},
		{
			name:    "unknown stays raw",
			apiErr:  APIError{HTTPStatus: http.StatusInternalServerError, Message: "something broke"},
			wantRaw: true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := classifyAPIError(tc.apiErr)
			if tc.wantRaw {
				if !errors.Is(err, tc.apiErr) {
					t.Fatalf("classifyAPIError() = %v, want raw APIError", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("classifyAPIError() = %v, want %v in chain", err, tc.want)
			}
			raw, ok := AsAPIError(err)
			if !ok {
				t.Fatalf("AsAPIError() lost the raw error from %v", err)
			}
			if raw.HTTPStatus != tc.apiErr.HTTPStatus {
				t.Fatalf("raw status = %d, want %d", raw.HTTPStatus, tc.apiErr.HTTPStatus)
			}
		})
	}
}

func TestTransientClassification(t *testing.T) {
	if !core.Transient(classifyAPIError(APIError{HTTPStatus: http.StatusTooManyRequests})) {
		t.Fatalf("rate limit not treated as transient")
	}
	if core.Transient(classifyAPIError(APIError{HTTPStatus: http.StatusBadRequest, Message: "Insufficient funds"})) {
		t.Fatalf("insufficient funds treated as transient")
	}
	if core.Transient(classifyAPIError(APIError{HTTPStatus: http.StatusUnauthorized})) {
		t.Fatalf("auth failure treated as transient")
	}
	if !core.Transient(errors.New("connection reset by peer")) {
		t.Fatalf("network-style error not treated as transient")
	}
}

func TestDoSignedSurfacesHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"code":429,"message":"rate limit exceeded"}`)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.CancelOrder(context.Background(), "ord-5")
	if !errors.Is(err, core.ErrRateLimited) {
		t.Fatalf("CancelOrder() error = %v, want ErrRateLimited", err)
	}
	raw, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("AsAPIError() = false, want raw error preserved")
	}
	if raw.Code != 429 || raw.Message != "rate limit exceeded" {
		t.Fatalf("raw = %+v, want code 429 with message", raw)
	}
}
