package errors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestCodeClassifiesWrappedErrors(t *testing.T) {
	cases := []struct {
		err    error
		code   string
		status int
	}{
		{fmt.Errorf("%w: guard: caller must be an admin", ErrUnauthorized), "UNAUTHORIZED", http.StatusForbidden},
		{fmt.Errorf("%w: treasury: token already exists", ErrAlreadyExists), "ALREADY_EXISTS", http.StatusConflict},
		{fmt.Errorf("outer: %w", fmt.Errorf("%w: fund: balance too low", ErrInsufficientShares)), "INSUFFICIENT_SHARES", http.StatusUnprocessableEntity},
		{fmt.Errorf("boom"), "INTERNAL", http.StatusInternalServerError},
	}
	for _, tc := range cases {
		code, status := Code(tc.err)
		if code != tc.code || status != tc.status {
			t.Fatalf("Code(%v) = %s/%d, want %s/%d", tc.err, code, status, tc.code, tc.status)
		}
	}
	if code, status := Code(nil); code != "" || status != http.StatusOK {
		t.Fatalf("unexpected classification for nil: %s/%d", code, status)
	}
}
