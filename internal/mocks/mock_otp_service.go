package mocks

import (
	"context"
	"time"

	"github.com/you/otpgate/domain"
)

// MockOTPService implements domain.OTPService interface for testing
type MockOTPService struct {
	SendFunc         func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error)
	VerifyFunc       func(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error)
	SweepExpiredFunc func(ctx context.Context) (int, error)
}

// NewMockOTPService creates a new MockOTPService with default behaviors
func NewMockOTPService() *MockOTPService {
	return &MockOTPService{}
}

// Send issues a challenge
func (m *MockOTPService) Send(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
	if m.SendFunc != nil {
		return m.SendFunc(ctx, target)
	}
	// Default behavior: a fixed challenge expiring in five minutes
	return &domain.IssuedChallenge{
		RequestID: "mock-request-id",
		ExpiresAt: time.Now().Add(5 * time.Minute),
	}, nil
}

// Verify redeems a challenge
func (m *MockOTPService) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, req)
	}
	// Default behavior: accept "123456" as valid OTP
	if req.Code != "123456" {
		return nil, domain.ErrOTPInvalid
	}
	return &domain.VerifyResult{
		UserID:          req.Target.UserID,
		FullPhoneNumber: req.Target.FullPhoneNumber(),
		Persistence:     domain.Persistence{Persisted: true},
	}, nil
}

// SweepExpired removes expired challenges
func (m *MockOTPService) SweepExpired(ctx context.Context) (int, error) {
	if m.SweepExpiredFunc != nil {
		return m.SweepExpiredFunc(ctx)
	}
	return 0, nil
}

// Compile-time interface compliance verification
var _ domain.OTPService = (*MockOTPService)(nil)
