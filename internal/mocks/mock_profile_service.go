package mocks

import (
	"context"

	"github.com/you/otpgate/domain"
)

// MockProfileService implements domain.ProfileService interface for testing
type MockProfileService struct {
	IsPhoneLinkedElsewhereFunc  func(ctx context.Context, userID, fullPhoneNumber string) bool
	PersistVerifiedProfileFunc  func(ctx context.Context, profile domain.VerifiedProfile) domain.Persistence
	GetLaunchNotifyFunc         func(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error)
	SetLaunchNotifyFunc         func(ctx context.Context, userID string, optIn bool) error
	ListProfilesForOperatorFunc func(ctx context.Context, requesterID string, limit int) ([]domain.ProfileRow, error)
}

// NewMockProfileService creates a new MockProfileService with default behaviors
func NewMockProfileService() *MockProfileService {
	return &MockProfileService{}
}

// IsPhoneLinkedElsewhere checks phone ownership
func (m *MockProfileService) IsPhoneLinkedElsewhere(ctx context.Context, userID, fullPhoneNumber string) bool {
	if m.IsPhoneLinkedElsewhereFunc != nil {
		return m.IsPhoneLinkedElsewhereFunc(ctx, userID, fullPhoneNumber)
	}
	return false
}

// PersistVerifiedProfile stores a verified profile
func (m *MockProfileService) PersistVerifiedProfile(ctx context.Context, profile domain.VerifiedProfile) domain.Persistence {
	if m.PersistVerifiedProfileFunc != nil {
		return m.PersistVerifiedProfileFunc(ctx, profile)
	}
	return domain.Persistence{Persisted: true}
}

// GetLaunchNotify reads the launch preference
func (m *MockProfileService) GetLaunchNotify(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error) {
	if m.GetLaunchNotifyFunc != nil {
		return m.GetLaunchNotifyFunc(ctx, userID)
	}
	return &domain.LaunchNotifyPreference{}, nil
}

// SetLaunchNotify writes the launch preference
func (m *MockProfileService) SetLaunchNotify(ctx context.Context, userID string, optIn bool) error {
	if m.SetLaunchNotifyFunc != nil {
		return m.SetLaunchNotifyFunc(ctx, userID, optIn)
	}
	return nil
}

// ListProfilesForOperator returns rows for an allow-listed operator
func (m *MockProfileService) ListProfilesForOperator(ctx context.Context, requesterID string, limit int) ([]domain.ProfileRow, error) {
	if m.ListProfilesForOperatorFunc != nil {
		return m.ListProfilesForOperatorFunc(ctx, requesterID, limit)
	}
	return []domain.ProfileRow{}, nil
}

// Compile-time interface compliance verification
var _ domain.ProfileService = (*MockProfileService)(nil)
