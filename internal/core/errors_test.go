package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", ErrRateLimited, true},
		{"wrapped rate limited", fmt.Errorf("orderbook: %w", ErrRateLimited), true},
		{"network-style", errors.New("connection refused"), true},
		{"auth", ErrAuth, false},
		{"rejected", ErrOrderRejected, false},
		{"insufficient balance", ErrInsufficientBalance, false},
		{"order not found", ErrOrderNotFound, false},
		{"invalid parameters", ErrInvalidParameters, false},
		{"invalid quote", ErrInvalidQuote, false},
		{"joined rejection and throttle", errors.Join(errors.New("raw"), ErrRateLimited), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Transient(tc.err); got != tc.want {
				t.Fatalf("Transient(%v) = %t, want %t", tc.err, got, tc.want)
			}
		})
	}
}
