package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/metrics"
)

// Persistence reasons reported to the client after a successful verification
const (
	ReasonStoreUnconfigured = "Profile store is not configured."
	ReasonCredentialMissing = "Backend credential is not configured."
	ReasonStoreFailed       = "Failed to save profile."
)

// ProfileServiceImpl implements domain.ProfileService. A nil store means no
// profile store is configured.
type ProfileServiceImpl struct {
	store  domain.ProfileStore
	policy domain.OperatorPolicy
	audit  domain.AuditLogger
	config ProfileConfig
}

type ProfileConfig struct {
	Timeout          time.Duration
	DefaultListLimit int
	MaxListLimit     int
}

// NewProfileService creates a new profile service
func NewProfileService(store domain.ProfileStore, policy domain.OperatorPolicy, audit domain.AuditLogger, config ProfileConfig) *ProfileServiceImpl {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.DefaultListLimit <= 0 {
		config.DefaultListLimit = 200
	}
	if config.MaxListLimit <= 0 {
		config.MaxListLimit = 500
	}
	return &ProfileServiceImpl{store: store, policy: policy, audit: audit, config: config}
}

// Configured reports whether a profile store is wired
func (s *ProfileServiceImpl) Configured() bool {
	return s.store != nil
}

// IsPhoneLinkedElsewhere implements domain.ProfileService. Lookup failures are
// logged and treated as "not linked".
func (s *ProfileServiceImpl) IsPhoneLinkedElsewhere(ctx context.Context, userID, fullPhoneNumber string) bool {
	if s.store == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	owners, err := s.store.PhoneOwners(ctx, fullPhoneNumber)
	metrics.ProfileStoreCalls.WithLabelValues("phone_owners", metrics.Outcome(err)).Inc()
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("phone", domain.MaskPhone(fullPhoneNumber)).Msg("failed to check phone ownership")
		return false
	}
	for _, owner := range owners {
		if owner != "" && owner != userID {
			return true
		}
	}
	return false
}

// PersistVerifiedProfile implements domain.ProfileService. It never fails the caller.
func (s *ProfileServiceImpl) PersistVerifiedProfile(ctx context.Context, profile domain.VerifiedProfile) domain.Persistence {
	if s.store == nil {
		return domain.Persistence{Persisted: false, Reason: ReasonStoreUnconfigured}
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err := s.store.UpsertVerifiedProfile(ctx, profile)
	metrics.ProfileStoreCalls.WithLabelValues("upsert_verified_profile", metrics.Outcome(err)).Inc()
	if err != nil {
		zerolog.Ctx(ctx).Err(err).Str("user_id", profile.UserID).Msg("failed to persist verified profile")
		s.logEvent(ctx, domain.NewAuditEvent(domain.ProfilePersistFailureEvent, profile.UserID).
			WithPhone(domain.MaskPhone(profile.FullPhoneNumber)).
			WithError(err))
		if errors.Is(err, domain.ErrBackendCredentialMissing) {
			return domain.Persistence{Persisted: false, Reason: ReasonCredentialMissing}
		}
		return domain.Persistence{Persisted: false, Reason: ReasonStoreFailed}
	}

	s.logEvent(ctx, domain.NewAuditEvent(domain.ProfilePersistedEvent, profile.UserID).
		WithPhone(domain.MaskPhone(profile.FullPhoneNumber)))
	return domain.Persistence{Persisted: true}
}

// GetLaunchNotify implements domain.ProfileService
func (s *ProfileServiceImpl) GetLaunchNotify(ctx context.Context, userID string) (*domain.LaunchNotifyPreference, error) {
	if userID == "" {
		return nil, domain.ErrMissingUserID
	}
	if s.store == nil {
		return nil, domain.ErrProfileStoreUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	pref, err := s.store.GetLaunchNotify(ctx, userID)
	metrics.ProfileStoreCalls.WithLabelValues("get_launch_notify", metrics.Outcome(err)).Inc()
	if err != nil {
		return nil, storeFailure("get launch notify", err)
	}
	return pref, nil
}

// SetLaunchNotify implements domain.ProfileService
func (s *ProfileServiceImpl) SetLaunchNotify(ctx context.Context, userID string, optIn bool) error {
	if userID == "" {
		return domain.ErrMissingUserID
	}
	if s.store == nil {
		return domain.ErrProfileStoreUnconfigured
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	err := s.store.SetLaunchNotify(ctx, userID, optIn)
	metrics.ProfileStoreCalls.WithLabelValues("set_launch_notify", metrics.Outcome(err)).Inc()
	if err != nil {
		return storeFailure("set launch notify", err)
	}
	return nil
}

// ListProfilesForOperator implements domain.ProfileService. The allow-list is
// checked before store configuration.
func (s *ProfileServiceImpl) ListProfilesForOperator(ctx context.Context, requesterID string, limit int) ([]domain.ProfileRow, error) {
	if requesterID == "" {
		return nil, domain.ErrMissingUserID
	}

	allowed, err := s.policy.CanListProfiles(requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate operator policy: %w", err)
	}
	if !allowed {
		s.logEvent(ctx, domain.NewAuditEvent(domain.OperatorListDeniedEvent, requesterID).WithError(domain.ErrForbidden))
		return nil, domain.ErrForbidden
	}
	if s.store == nil {
		return nil, domain.ErrProfileStoreUnconfigured
	}

	limit = s.clampLimit(limit)
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	rows, err := s.store.ListProfiles(ctx, limit)
	metrics.ProfileStoreCalls.WithLabelValues("list_profiles", metrics.Outcome(err)).Inc()
	if err != nil {
		if errors.Is(err, domain.ErrBackendCredentialMissing) {
			return nil, err
		}
		zerolog.Ctx(ctx).Err(err).Msg("failed to load private profiles")
		return nil, storeFailure("list profiles", err)
	}

	s.logEvent(ctx, domain.NewAuditEvent(domain.OperatorListGrantedEvent, requesterID).
		WithMetadata("limit", limit).
		WithMetadata("rows", len(rows)))
	return rows, nil
}

// clampLimit applies the default for a missing limit and bounds it to [1, MaxListLimit]
func (s *ProfileServiceImpl) clampLimit(limit int) int {
	if limit == 0 {
		limit = s.config.DefaultListLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > s.config.MaxListLimit {
		limit = s.config.MaxListLimit
	}
	return limit
}

func (s *ProfileServiceImpl) logEvent(ctx context.Context, event *domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		zerolog.Ctx(ctx).Err(err).Str("event_type", string(event.EventType)).Msg("failed to write audit event")
	}
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrProfileStoreFailure, err)
}
