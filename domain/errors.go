package domain

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors
var (
	ErrInvalidPayload = errors.New("invalid payload")
	ErrMissingUserID  = errors.New("missing user id")
)

// OTP errors
var (
	ErrOTPExpired        = errors.New("otp has expired")
	ErrOTPInvalid        = errors.New("invalid otp code")
	ErrOTPMaxAttempts    = errors.New("maximum otp attempts exceeded")
	ErrOTPNotFound       = errors.New("otp not found")
	ErrChallengeNotFound = errors.New("challenge not found")
)

// Profile errors
var (
	ErrPhoneLinkedElsewhere     = errors.New("phone number is linked to another identity")
	ErrProfileStoreUnconfigured = errors.New("profile store is not configured")
	ErrBackendCredentialMissing = errors.New("backend credential is not configured")
	ErrProfileStoreFailure      = errors.New("profile store request failed")
)

// Authorization errors
var (
	ErrForbidden        = errors.New("forbidden")
	ErrIdentityMismatch = errors.New("identity does not match token subject")
	ErrTokenInvalid     = errors.New("invalid token")
)

// PhoneLinkedMessage is shown when a number already belongs to another profile
const PhoneLinkedMessage = "This mobile number is already linked to another account. Each number can only be used with one profile. Please use a different mobile number."

// RateLimitError signals a cooldown; RetryAfter is zero when unknown
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("please wait %dms before requesting another otp", e.RetryAfter.Milliseconds())
	}
	return "please wait before requesting another otp"
}

// DispatchErrorKind classifies delivery failures
type DispatchErrorKind int

const (
	DispatchTimeout DispatchErrorKind = iota + 1
	DispatchRejected
	DispatchTransport
)

func (k DispatchErrorKind) String() string {
	switch k {
	case DispatchTimeout:
		return "timeout"
	case DispatchRejected:
		return "rejected"
	case DispatchTransport:
		return "transport"
	default:
		return "unknown"
	}
}

// DispatchError is returned by every Dispatcher on failure
type DispatchError struct {
	Kind   DispatchErrorKind
	Status int
	Body   string
	Err    error
}

func (e *DispatchError) Error() string {
	switch e.Kind {
	case DispatchTimeout:
		return fmt.Sprintf("dispatch timeout: %v", e.Err)
	case DispatchRejected:
		if e.Body != "" {
			return fmt.Sprintf("dispatch returned HTTP %d: %s", e.Status, e.Body)
		}
		return fmt.Sprintf("dispatch returned HTTP %d", e.Status)
	default:
		return fmt.Sprintf("dispatch request failed: %v", e.Err)
	}
}

func (e *DispatchError) Unwrap() error { return e.Err }

// RateLimited reports whether the upstream asked us to slow down
func (e *DispatchError) RateLimited() bool {
	return e.Kind == DispatchRejected && e.Status == 429
}

// MaxDispatchBodySnippet bounds how much of an upstream error body is kept
const MaxDispatchBodySnippet = 200

// NewRejectedDispatch truncates body to MaxDispatchBodySnippet bytes
func NewRejectedDispatch(status int, body string) *DispatchError {
	if len(body) > MaxDispatchBodySnippet {
		body = body[:MaxDispatchBodySnippet]
	}
	return &DispatchError{Kind: DispatchRejected, Status: status, Body: body}
}
