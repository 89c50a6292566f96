package domain

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func TestOTPErrors(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		expectedMsg string
	}{
		{name: "ErrOTPExpired", err: ErrOTPExpired, expectedMsg: "otp has expired"},
		{name: "ErrOTPInvalid", err: ErrOTPInvalid, expectedMsg: "invalid otp code"},
		{name: "ErrOTPMaxAttempts", err: ErrOTPMaxAttempts, expectedMsg: "maximum otp attempts exceeded"},
		{name: "ErrOTPNotFound", err: ErrOTPNotFound, expectedMsg: "otp not found"},
		{name: "ErrChallengeNotFound", err: ErrChallengeNotFound, expectedMsg: "challenge not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.expectedMsg {
				t.Errorf("expected error message %q, got %q", tt.expectedMsg, tt.err.Error())
			}

			// Test that these are different errors
			for _, other := range tests {
				if other.name != tt.name && errors.Is(tt.err, other.err) {
					t.Errorf("error %s should not be equal to %s", tt.name, other.name)
				}
			}

			wrapped := fmt.Errorf("verify: %w", tt.err)
			if !errors.Is(wrapped, tt.err) {
				t.Error("wrapped error should match its sentinel")
			}
		})
	}
}

func TestRateLimitError(t *testing.T) {
	withRetry := &RateLimitError{RetryAfter: 1500 * time.Millisecond}
	if !strings.Contains(withRetry.Error(), "1500ms") {
		t.Errorf("expected retry hint in %q", withRetry.Error())
	}

	var target *RateLimitError
	if !errors.As(fmt.Errorf("send: %w", withRetry), &target) {
		t.Fatal("errors.As should find RateLimitError")
	}
	if target.RetryAfter != 1500*time.Millisecond {
		t.Errorf("unexpected RetryAfter %v", target.RetryAfter)
	}

	bare := &RateLimitError{}
	if bare.Error() != "please wait before requesting another otp" {
		t.Errorf("unexpected message %q", bare.Error())
	}
}

func TestDispatchError(t *testing.T) {
	tests := []struct {
		name        string
		err         *DispatchError
		rateLimited bool
		contains    string
	}{
		{
			name:     "timeout",
			err:      &DispatchError{Kind: DispatchTimeout, Err: context.DeadlineExceeded},
			contains: "dispatch timeout",
		},
		{
			name:        "rate limited",
			err:         NewRejectedDispatch(429, "slow down"),
			rateLimited: true,
			contains:    "HTTP 429: slow down",
		},
		{
			name:     "rejected without body",
			err:      NewRejectedDispatch(500, ""),
			contains: "HTTP 500",
		},
		{
			name:     "transport",
			err:      &DispatchError{Kind: DispatchTransport, Err: errors.New("connection refused")},
			contains: "connection refused",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.RateLimited() != tt.rateLimited {
				t.Errorf("expected RateLimited %t", tt.rateLimited)
			}
			if !strings.Contains(tt.err.Error(), tt.contains) {
				t.Errorf("expected %q in %q", tt.contains, tt.err.Error())
			}
		})
	}

	timeout := &DispatchError{Kind: DispatchTimeout, Err: context.DeadlineExceeded}
	if !errors.Is(timeout, context.DeadlineExceeded) {
		t.Error("DispatchError should unwrap to its cause")
	}
}

func TestNewRejectedDispatch_TruncatesBody(t *testing.T) {
	body := strings.Repeat("x", 500)
	err := NewRejectedDispatch(502, body)

	if len(err.Body) != MaxDispatchBodySnippet {
		t.Errorf("expected body of %d bytes, got %d", MaxDispatchBodySnippet, len(err.Body))
	}
	if err.Kind.String() != "rejected" {
		t.Errorf("unexpected kind %s", err.Kind)
	}
}
