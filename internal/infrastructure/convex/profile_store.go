package convex

import (
	"context"

	"github.com/you/otpgate/domain"
)

const (
	upsertVerifiedPhonePath = "privateProfiles:upsertFromBackendVerifiedPhone"
	phoneOwnerPath          = "privateProfiles:getPhoneOwnerForBackend"
	getLaunchNotifyPath     = "privateProfiles:getLaunchNotifyForBackend"
	setLaunchNotifyPath     = "privateProfiles:setLaunchNotifyFromBackend"
	listProfilesPath        = "privateProfiles:listPrivateProfilesForBackendTeam"
)

// ProfileStore implements domain.ProfileStore on top of the privateProfiles functions.
// Every call carries the backend service token.
type ProfileStore struct {
	client       *Client
	serviceToken string
}

// NewProfileStore creates a Convex backed profile store
func NewProfileStore(client *Client, serviceToken string) *ProfileStore {
	return &ProfileStore{client: client, serviceToken: serviceToken}
}

func (s *ProfileStore) args(kv map[string]interface{}) (map[string]interface{}, error) {
	if s.serviceToken == "" {
		return nil, domain.ErrBackendCredentialMissing
	}
	kv["serviceToken"] = s.serviceToken
	return kv, nil
}

// UpsertVerifiedProfile implements domain.ProfileStore
func (s *ProfileStore) UpsertVerifiedProfile(ctx context.Context, p domain.VerifiedProfile) error {
	kv := map[string]interface{}{
		"clerkUserId":     p.UserID,
		"countryCode":     p.CountryCode,
		"phoneNumber":     p.PhoneNumber,
		"fullPhoneNumber": p.FullPhoneNumber,
	}
	// absent optional fields must be omitted rather than sent as null
	for name, v := range map[string]*string{
		"email":      p.Contact.Email,
		"fullName":   p.Contact.FullName,
		"address":    p.Contact.Address,
		"churchName": p.Contact.ChurchName,
	} {
		if v != nil {
			kv[name] = *v
		}
	}

	args, err := s.args(kv)
	if err != nil {
		return err
	}
	return s.client.Mutation(ctx, upsertVerifiedPhonePath, args, nil)
}

// PhoneOwners implements domain.ProfileStore
func (s *ProfileStore) PhoneOwners(ctx context.Context, fullPhoneNumber string) ([]string, error) {
	args, err := s.args(map[string]interface{}{"fullPhoneNumber": fullPhoneNumber})
	if err != nil {
		return nil, err
	}
	var out struct {
		ClerkUserIDs []string `json:"clerkUserIds"`
	}
	if err := s.client.Query(ctx, phoneOwnerPath, args, &out); err != nil {
		return nil, err
	}
	return out.ClerkUserIDs, nil
}

// GetLaunchNotify implements domain.ProfileStore
func (s *ProfileStore) GetLaunchNotify(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error) {
	args, err := s.args(map[string]interface{}{"clerkUserId": userID})
	if err != nil {
		return nil, err
	}
	var out struct {
		LaunchNotifyOptIn     *bool               `json:"launchNotifyOptIn"`
		LaunchNotifyUpdatedAt *domain.EpochMillis `json:"launchNotifyUpdatedAt"`
	}
	if err := s.client.Query(ctx, getLaunchNotifyPath, args, &out); err != nil {
		return nil, err
	}

	pref := &domain.LaunchNotifyPreference{OptIn: out.LaunchNotifyOptIn != nil && *out.LaunchNotifyOptIn}
	if out.LaunchNotifyUpdatedAt != nil {
		t := out.LaunchNotifyUpdatedAt.Time()
		pref.UpdatedAt = &t
	}
	return pref, nil
}

// SetLaunchNotify implements domain.ProfileStore
func (s *ProfileStore) SetLaunchNotify(ctx context.Context, userID string, optIn bool) error {
	args, err := s.args(map[string]interface{}{
		"clerkUserId":       userID,
		"launchNotifyOptIn": optIn,
	})
	if err != nil {
		return err
	}
	return s.client.Mutation(ctx, setLaunchNotifyPath, args, nil)
}

// ListProfiles implements domain.ProfileStore
func (s *ProfileStore) ListProfiles(ctx context.Context, limit int) ([]domain.ProfileRow, error) {
	args, err := s.args(map[string]interface{}{"limit": limit})
	if err != nil {
		return nil, err
	}
	var rows []domain.ProfileRow
	if err := s.client.Query(ctx, listProfilesPath, args, &rows); err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.ProfileRow{}
	}
	return rows, nil
}
