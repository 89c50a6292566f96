package mocks

import (
	"context"

	"github.com/you/otpgate/domain"
)

// MockProfileStore implements domain.ProfileStore interface for testing
type MockProfileStore struct {
	UpsertVerifiedProfileFunc func(ctx context.Context, profile domain.VerifiedProfile) error
	PhoneOwnersFunc           func(ctx context.Context, fullPhoneNumber string) ([]string, error)
	GetLaunchNotifyFunc       func(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error)
	SetLaunchNotifyFunc       func(ctx context.Context, userID string, optIn bool) error
	ListProfilesFunc          func(ctx context.Context, limit int) ([]domain.ProfileRow, error)
}

// NewMockProfileStore creates a new MockProfileStore with default behaviors
func NewMockProfileStore() *MockProfileStore {
	return &MockProfileStore{}
}

// UpsertVerifiedProfile writes a verified profile
func (m *MockProfileStore) UpsertVerifiedProfile(ctx context.Context, profile domain.VerifiedProfile) error {
	if m.UpsertVerifiedProfileFunc != nil {
		return m.UpsertVerifiedProfileFunc(ctx, profile)
	}
	return nil
}

// PhoneOwners returns identities holding fullPhoneNumber
func (m *MockProfileStore) PhoneOwners(ctx context.Context, fullPhoneNumber string) ([]string, error) {
	if m.PhoneOwnersFunc != nil {
		return m.PhoneOwnersFunc(ctx, fullPhoneNumber)
	}
	// Default behavior: nobody owns the number
	return nil, nil
}

// GetLaunchNotify reads the launch preference
func (m *MockProfileStore) GetLaunchNotify(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error) {
	if m.GetLaunchNotifyFunc != nil {
		return m.GetLaunchNotifyFunc(ctx, userID)
	}
	return &domain.LaunchNotifyPreference{}, nil
}

// SetLaunchNotify writes the launch preference
func (m *MockProfileStore) SetLaunchNotify(ctx context.Context, userID string, optIn bool) error {
	if m.SetLaunchNotifyFunc != nil {
		return m.SetLaunchNotifyFunc(ctx, userID, optIn)
	}
	return nil
}

// ListProfiles returns up to limit rows
func (m *MockProfileStore) ListProfiles(ctx context.Context, limit int) ([]domain.ProfileRow, error) {
	if m.ListProfilesFunc != nil {
		return m.ListProfilesFunc(ctx, limit)
	}
	return []domain.ProfileRow{}, nil
}

// Compile-time interface compliance verification
var _ domain.ProfileStore = (*MockProfileStore)(nil)
