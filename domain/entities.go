package domain

import (
	"strings"
	"time"
)

// Challenge represents one outstanding OTP issuance awaiting verification
type Challenge struct {
	RequestID       string
	IdentityKey     string
	UserID          string
	CountryCode     string
	PhoneNumber     string
	FullPhoneNumber string
	CodeDigest      string
	Salt            string
	Attempts        int
	CreatedAt       time.Time
	ExpiresAt       time.Time
}

// IsLive reports whether the challenge can still be redeemed at now
func (c *Challenge) IsLive(now time.Time) bool {
	return c.ExpiresAt.After(now)
}

// Clone returns a copy so callers never hold a reference into a store
func (c *Challenge) Clone() *Challenge {
	if c == nil {
		return nil
	}
	cp := *c
	return &cp
}

// PhoneTarget is a normalized (user, phone) pair
type PhoneTarget struct {
	UserID      string
	CountryCode string
	PhoneNumber string
}

// NewPhoneTarget trims the identity and country code and keeps only the digits of the phone number
func NewPhoneTarget(userID, countryCode, phoneNumber string) PhoneTarget {
	return PhoneTarget{
		UserID:      strings.TrimSpace(userID),
		CountryCode: strings.TrimSpace(countryCode),
		PhoneNumber: DigitsOnly(phoneNumber),
	}
}

// FullPhoneNumber joins country code and digits, e.g. "+15551234567"
func (p PhoneTarget) FullPhoneNumber() string {
	return p.CountryCode + p.PhoneNumber
}

// IdentityKey is the unit of rate limiting and challenge lookup
func (p PhoneTarget) IdentityKey() string {
	return p.UserID + "::" + p.CountryCode + p.PhoneNumber
}

// Valid reports whether the target carries enough data to issue a challenge
func (p PhoneTarget) Valid() bool {
	return p.UserID != "" && p.CountryCode != "" && len(p.PhoneNumber) >= MinPhoneDigits
}

// MinPhoneDigits is the shortest national number accepted
const MinPhoneDigits = 7

// DigitsOnly strips everything but ASCII digits
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IssuedChallenge is what the client receives after a successful send
type IssuedChallenge struct {
	RequestID string
	ExpiresAt time.Time
}

// ContactFields are optional profile details supplied alongside verification
type ContactFields struct {
	Email      *string
	FullName   *string
	Address    *string
	ChurchName *string
}

// VerifyRequest carries a candidate code for redemption
type VerifyRequest struct {
	Target    PhoneTarget
	RequestID string
	Code      string
	Contact   ContactFields
}

// VerifyResult represents a successful verification outcome
type VerifyResult struct {
	UserID          string
	FullPhoneNumber string
	Persistence     Persistence
}

// Persistence reports whether the verified profile reached the profile store
type Persistence struct {
	Persisted bool   `json:"persisted"`
	Reason    string `json:"reason,omitempty"`
}

// VerifiedProfile is the payload written to the profile store after verification
type VerifiedProfile struct {
	UserID          string
	CountryCode     string
	PhoneNumber     string
	FullPhoneNumber string
	Contact         ContactFields
}

// DispatchPayload is handed to the delivery channel exactly once per challenge
type DispatchPayload struct {
	RequestID       string      `json:"requestId"`
	UserID          string      `json:"userId"`
	CountryCode     string      `json:"countryCode"`
	PhoneNumber     string      `json:"phoneNumber"`
	FullPhoneNumber string      `json:"fullPhoneNumber"`
	OTP             string      `json:"otp"`
	CreatedAt       EpochMillis `json:"createdAt"`
	ExpiresAt       EpochMillis `json:"expiresAt"`
}

// LaunchNotifyPreference is the holding page opt-in state
type LaunchNotifyPreference struct {
	OptIn     bool
	UpdatedAt *time.Time
}

// ProfileRow is the operator view of a collected profile
type ProfileRow struct {
	ClerkUserID           string       `json:"clerkUserId"`
	FullName              *string      `json:"fullName,omitempty"`
	Email                 *string      `json:"email,omitempty"`
	CountryCode           *string      `json:"countryCode,omitempty"`
	PhoneNumber           *string      `json:"phoneNumber,omitempty"`
	FullPhoneNumber       *string      `json:"fullPhoneNumber,omitempty"`
	ChurchName            *string      `json:"churchName,omitempty"`
	Address               *string      `json:"address,omitempty"`
	LaunchNotifyOptIn     *bool        `json:"launchNotifyOptIn,omitempty"`
	LaunchNotifyUpdatedAt *EpochMillis `json:"launchNotifyUpdatedAt,omitempty"`
	PhoneVerifiedAt       *EpochMillis `json:"phoneVerifiedAt,omitempty"`
	UpdatedAt             EpochMillis  `json:"updatedAt"`
}
