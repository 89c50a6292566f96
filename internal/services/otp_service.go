package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/metrics"
)

// MinCodeLength is the shortest candidate code accepted for verification
const MinCodeLength = 4

// OTPServiceImpl implements domain.OTPService
type OTPServiceImpl struct {
	store      domain.ChallengeStore
	hasher     domain.CodeHasher
	dispatcher domain.Dispatcher
	profiles   domain.ProfileService
	audit      domain.AuditLogger
	config     OTPConfig
	locks      *keyedMutex
	nowF       func() time.Time
	newID      func() string
}

type OTPConfig struct {
	TTL            time.Duration
	MaxAttempts    int
	ResendCooldown time.Duration
}

// NewOTPService creates a new OTP service
func NewOTPService(
	store domain.ChallengeStore,
	hasher domain.CodeHasher,
	dispatcher domain.Dispatcher,
	profiles domain.ProfileService,
	audit domain.AuditLogger,
	config OTPConfig,
) *OTPServiceImpl {
	return &OTPServiceImpl{
		store:      store,
		hasher:     hasher,
		dispatcher: dispatcher,
		profiles:   profiles,
		audit:      audit,
		config:     config,
		locks:      newKeyedMutex(),
		nowF:       time.Now,
		newID:      uuid.NewString,
	}
}

// Send implements domain.OTPService
func (s *OTPServiceImpl) Send(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
	if !target.Valid() {
		return nil, domain.ErrInvalidPayload
	}

	key := target.IdentityKey()
	fullPhone := target.FullPhoneNumber()
	zlog := zerolog.Ctx(ctx).With().Str("user_id", target.UserID).Str("phone", domain.MaskPhone(fullPhone)).Logger()

	unlock := s.locks.Lock(key)
	defer unlock()

	if s.profiles.IsPhoneLinkedElsewhere(ctx, target.UserID, fullPhone) {
		s.logEvent(ctx, domain.NewAuditEvent(domain.OTPSendFailureEvent, target.UserID).
			WithPhone(domain.MaskPhone(fullPhone)).
			WithError(domain.ErrPhoneLinkedElsewhere))
		return nil, domain.ErrPhoneLinkedElsewhere
	}

	now := s.nowF()
	lastSent, ok, err := s.store.LastSendAt(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read resend guard: %w", err)
	}
	if ok {
		if elapsed := now.Sub(lastSent); elapsed < s.config.ResendCooldown {
			return nil, &domain.RateLimitError{RetryAfter: s.config.ResendCooldown - elapsed}
		}
	}

	code, err := s.hasher.Generate()
	if err != nil {
		return nil, err
	}
	salt := s.hasher.NewSalt()
	digest, err := s.hasher.Digest(code, salt)
	if err != nil {
		return nil, err
	}

	challenge := &domain.Challenge{
		RequestID:       s.newID(),
		IdentityKey:     key,
		UserID:          target.UserID,
		CountryCode:     target.CountryCode,
		PhoneNumber:     target.PhoneNumber,
		FullPhoneNumber: fullPhone,
		CodeDigest:      digest,
		Salt:            salt,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.config.TTL),
	}
	if err := s.store.Put(ctx, challenge); err != nil {
		return nil, fmt.Errorf("failed to store challenge: %w", err)
	}

	err = s.dispatcher.Send(ctx, domain.DispatchPayload{
		RequestID:       challenge.RequestID,
		UserID:          challenge.UserID,
		CountryCode:     challenge.CountryCode,
		PhoneNumber:     challenge.PhoneNumber,
		FullPhoneNumber: challenge.FullPhoneNumber,
		OTP:             code,
		CreatedAt:       domain.ToEpochMillis(challenge.CreatedAt),
		ExpiresAt:       domain.ToEpochMillis(challenge.ExpiresAt),
	})
	if err != nil {
		// Roll back so no undeliverable challenge stays redeemable
		if _, delErr := s.store.Delete(ctx, challenge.RequestID); delErr != nil {
			zlog.Err(delErr).Str("request_id", challenge.RequestID).Msg("failed to roll back challenge")
		}

		var dispatchErr *domain.DispatchError
		if !errors.As(err, &dispatchErr) {
			dispatchErr = &domain.DispatchError{Kind: domain.DispatchTransport, Err: err}
		}
		metrics.DispatchFailures.WithLabelValues(dispatchErr.Kind.String()).Inc()
		zlog.Err(dispatchErr).Str("request_id", challenge.RequestID).Msg("otp dispatch failed")
		s.logEvent(ctx, domain.NewAuditEvent(domain.OTPSendFailureEvent, target.UserID).
			WithPhone(domain.MaskPhone(fullPhone)).
			WithRequestID(challenge.RequestID).
			WithMetadata("dispatch_error", dispatchErr.Kind.String()).
			WithError(dispatchErr))
		return nil, dispatchErr
	}

	if err := s.store.RecordSend(ctx, key, now); err != nil {
		zlog.Err(err).Msg("failed to record send time")
	}

	metrics.ChallengesIssued.Inc()
	zlog.Info().Str("request_id", challenge.RequestID).Msg("otp sent")
	s.logEvent(ctx, domain.NewAuditEvent(domain.OTPSentEvent, target.UserID).
		WithPhone(domain.MaskPhone(fullPhone)).
		WithRequestID(challenge.RequestID))

	return &domain.IssuedChallenge{RequestID: challenge.RequestID, ExpiresAt: challenge.ExpiresAt}, nil
}

// Verify implements domain.OTPService
func (s *OTPServiceImpl) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	code := domain.DigitsOnly(req.Code)
	if !req.Target.Valid() || len(code) < MinCodeLength {
		metrics.Verifications.WithLabelValues("invalid_payload").Inc()
		return nil, domain.ErrInvalidPayload
	}

	challenge, err := s.redeem(ctx, req.Target.IdentityKey(), req.RequestID, code)
	if err != nil {
		metrics.Verifications.WithLabelValues(verifyOutcome(err)).Inc()
		s.logEvent(ctx, domain.NewAuditEvent(domain.OTPVerifyFailureEvent, req.Target.UserID).
			WithPhone(domain.MaskPhone(req.Target.FullPhoneNumber())).
			WithRequestID(req.RequestID).
			WithError(err))
		return nil, err
	}

	metrics.Verifications.WithLabelValues("verified").Inc()
	s.logEvent(ctx, domain.NewAuditEvent(domain.OTPVerifiedEvent, challenge.UserID).
		WithPhone(domain.MaskPhone(challenge.FullPhoneNumber)).
		WithRequestID(challenge.RequestID))

	// The challenge is consumed at this point; persistence only reports its outcome
	persistence := s.profiles.PersistVerifiedProfile(ctx, domain.VerifiedProfile{
		UserID:          challenge.UserID,
		CountryCode:     challenge.CountryCode,
		PhoneNumber:     challenge.PhoneNumber,
		FullPhoneNumber: challenge.FullPhoneNumber,
		Contact:         req.Contact,
	})

	return &domain.VerifyResult{
		UserID:          challenge.UserID,
		FullPhoneNumber: challenge.FullPhoneNumber,
		Persistence:     persistence,
	}, nil
}

// redeem runs the challenge state machine under the identity lock and returns the consumed challenge
func (s *OTPServiceImpl) redeem(ctx context.Context, identityKey, requestID, code string) (*domain.Challenge, error) {
	unlock := s.locks.Lock(identityKey)
	defer unlock()

	candidates, err := s.store.Candidates(ctx, identityKey, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to load challenges: %w", err)
	}
	if len(candidates) == 0 {
		expired, err := s.store.ExpiredRecently(ctx, identityKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check expiry: %w", err)
		}
		if expired {
			return nil, domain.ErrOTPExpired
		}
		return nil, domain.ErrOTPNotFound
	}

	now := s.nowF()
	var live *domain.Challenge
	for _, c := range candidates {
		if c.IsLive(now) {
			live = c
			break
		}
	}
	if live == nil {
		for _, c := range candidates {
			if err := s.store.Expire(ctx, c.RequestID); err != nil {
				return nil, fmt.Errorf("failed to expire challenge: %w", err)
			}
		}
		return nil, domain.ErrOTPExpired
	}

	attempts, err := s.store.IncrementAttempts(ctx, live.RequestID)
	if err != nil {
		if errors.Is(err, domain.ErrChallengeNotFound) {
			return nil, domain.ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to count attempt: %w", err)
	}
	if attempts > s.config.MaxAttempts {
		if _, err := s.store.Delete(ctx, live.RequestID); err != nil {
			return nil, fmt.Errorf("failed to discard challenge: %w", err)
		}
		return nil, domain.ErrOTPMaxAttempts
	}

	if !s.hasher.Matches(code, live.Salt, live.CodeDigest) {
		// The attempt that spends the last of the budget exhausts the challenge
		if attempts >= s.config.MaxAttempts {
			if _, err := s.store.Delete(ctx, live.RequestID); err != nil {
				return nil, fmt.Errorf("failed to discard challenge: %w", err)
			}
			return nil, domain.ErrOTPMaxAttempts
		}
		return nil, domain.ErrOTPInvalid
	}

	removed, err := s.store.Delete(ctx, live.RequestID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume challenge: %w", err)
	}
	if !removed {
		return nil, domain.ErrOTPNotFound
	}
	return live, nil
}

// SweepExpired implements domain.OTPService
func (s *OTPServiceImpl) SweepExpired(ctx context.Context) (int, error) {
	n, err := s.store.SweepExpired(ctx, s.nowF())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.SweptChallenges.Add(float64(n))
	}
	return n, nil
}

func (s *OTPServiceImpl) logEvent(ctx context.Context, event *domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogEvent(ctx, event); err != nil {
		zerolog.Ctx(ctx).Err(err).Str("event_type", string(event.EventType)).Msg("failed to write audit event")
	}
}

func verifyOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrOTPNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrOTPExpired):
		return "expired"
	case errors.Is(err, domain.ErrOTPInvalid):
		return "invalid_code"
	case errors.Is(err, domain.ErrOTPMaxAttempts):
		return "attempts_exceeded"
	default:
		return "error"
	}
}
