package domain

import (
	"context"
	"time"
)

// ChallengeStore holds outstanding OTP challenges. Implementations must make every
// method individually atomic.
type ChallengeStore interface {
	Put(ctx context.Context, challenge *Challenge) error
	// Candidates returns the latest challenge for identityKey first, then the challenge
	// named by requestID when it belongs to identityKey. Missing records are skipped.
	Candidates(ctx context.Context, identityKey, requestID string) ([]*Challenge, error)
	IncrementAttempts(ctx context.Context, requestID string) (int, error)
	// Delete reports whether a record was actually removed
	Delete(ctx context.Context, requestID string) (bool, error)
	// Expire removes the challenge and leaves an expiry tombstone for its identity key
	Expire(ctx context.Context, requestID string) error
	ExpiredRecently(ctx context.Context, identityKey string) (bool, error)
	SweepExpired(ctx context.Context, now time.Time) (int, error)
	LastSendAt(ctx context.Context, identityKey string) (time.Time, bool, error)
	RecordSend(ctx context.Context, identityKey string, at time.Time) error
}

// CodeHasher generates and digests OTP codes
type CodeHasher interface {
	Generate() (string, error)
	NewSalt() string
	Digest(code, salt string) (string, error)
	Matches(candidate, salt, storedDigest string) bool
}

// Dispatcher delivers a plaintext code to the user's phone. Failures are *DispatchError.
type Dispatcher interface {
	Send(ctx context.Context, payload DispatchPayload) error
}

// ProfileStore is the external durable store for users and private profiles
type ProfileStore interface {
	UpsertVerifiedProfile(ctx context.Context, profile VerifiedProfile) error
	PhoneOwners(ctx context.Context, fullPhoneNumber string) ([]string, error)
	GetLaunchNotify(ctx context.Context, userID string) (*LaunchNotifyPreference, error)
	SetLaunchNotify(ctx context.Context, userID string, optIn bool) error
	ListProfiles(ctx context.Context, limit int) ([]ProfileRow, error)
}

// OTPService defines OTP issuance and verification
type OTPService interface {
	Send(ctx context.Context, target PhoneTarget) (*IssuedChallenge, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error)
	SweepExpired(ctx context.Context) (int, error)
}

// ProfileService bridges verified identities to the profile store
type ProfileService interface {
	IsPhoneLinkedElsewhere(ctx context.Context, userID, fullPhoneNumber string) bool
	PersistVerifiedProfile(ctx context.Context, profile VerifiedProfile) Persistence
	GetLaunchNotify(ctx context.Context, userID string) (*LaunchNotifyPreference, error)
	SetLaunchNotify(ctx context.Context, userID string, optIn bool) error
	ListProfilesForOperator(ctx context.Context, requesterID string, limit int) ([]ProfileRow, error)
}

// OperatorPolicy decides which identities may read collected profiles
type OperatorPolicy interface {
	CanListProfiles(userID string) (bool, error)
}

// IdentityVerifier validates identity provider tokens and returns the subject
type IdentityVerifier interface {
	Subject(token string) (string, error)
}
