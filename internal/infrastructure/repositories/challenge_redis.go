package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/otpgate/domain"
)

// incrementScript returns -1 when the challenge is gone so a deleted record is never resurrected
var incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)

// removeScript deletes a challenge and clears the latest pointer only if it still points at it.
// ARGV: latest prefix, request id, tombstone prefix, tombstone ttl ms (0 clears the tombstone).
var removeScript = redis.NewScript(`
local ik = redis.call('HGET', KEYS[1], 'identity_key')
if not ik then
  return 0
end
redis.call('DEL', KEYS[1])
local lk = ARGV[1] .. ik
if redis.call('GET', lk) == ARGV[2] then
  redis.call('DEL', lk)
end
local tk = ARGV[3] .. ik
local ttl = tonumber(ARGV[4])
if ttl > 0 then
  redis.call('SET', tk, '1', 'PX', ttl)
else
  redis.call('DEL', tk)
end
return 1
`)

// ChallengeRedisStore implements domain.ChallengeStore using Redis hashes.
// Key TTLs replace the periodic sweep.
type ChallengeRedisStore struct {
	client    *redis.Client
	prefix    string
	retention time.Duration
	nowF      func() time.Time
}

// NewChallengeRedisStore creates a new Redis backed challenge store
func NewChallengeRedisStore(client *redis.Client, retention time.Duration) *ChallengeRedisStore {
	return &ChallengeRedisStore{
		client:    client,
		prefix:    "otp:",
		retention: retention,
		nowF:      time.Now,
	}
}

func (r *ChallengeRedisStore) challengeKey(requestID string) string {
	return r.prefix + "challenge:" + requestID
}

func (r *ChallengeRedisStore) latestPrefix() string   { return r.prefix + "latest:" }
func (r *ChallengeRedisStore) lastSendPrefix() string { return r.prefix + "lastsend:" }
func (r *ChallengeRedisStore) expiredPrefix() string  { return r.prefix + "expired:" }

// Put implements domain.ChallengeStore
func (r *ChallengeRedisStore) Put(ctx context.Context, c *domain.Challenge) error {
	// Expired records stay readable for the retention window so verification can report them as expired
	ttl := c.ExpiresAt.Sub(r.nowF()) + r.retention
	if ttl <= 0 {
		ttl = time.Second
	}
	key := r.challengeKey(c.RequestID)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, map[string]interface{}{
			"identity_key":      c.IdentityKey,
			"user_id":           c.UserID,
			"country_code":      c.CountryCode,
			"phone_number":      c.PhoneNumber,
			"full_phone_number": c.FullPhoneNumber,
			"digest":            c.CodeDigest,
			"salt":              c.Salt,
			"attempts":          c.Attempts,
			"created_at":        c.CreatedAt.UnixMilli(),
			"expires_at":        c.ExpiresAt.UnixMilli(),
		})
		pipe.PExpire(ctx, key, ttl)
		pipe.Set(ctx, r.latestPrefix()+c.IdentityKey, c.RequestID, ttl)
		pipe.Del(ctx, r.expiredPrefix()+c.IdentityKey)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store challenge: %w", err)
	}
	return nil
}

// Candidates implements domain.ChallengeStore
func (r *ChallengeRedisStore) Candidates(ctx context.Context, identityKey, requestID string) ([]*domain.Challenge, error) {
	latestID, err := r.client.Get(ctx, r.latestPrefix()+identityKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	ids := make([]string, 0, 2)
	if latestID != "" {
		ids = append(ids, latestID)
	}
	if requestID != "" && requestID != latestID {
		ids = append(ids, requestID)
	}

	var out []*domain.Challenge
	for _, id := range ids {
		c, err := r.load(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrChallengeNotFound) {
				continue
			}
			return nil, err
		}
		if c.IdentityKey != identityKey {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *ChallengeRedisStore) load(ctx context.Context, requestID string) (*domain.Challenge, error) {
	fields, err := r.client.HGetAll(ctx, r.challengeKey(requestID)).Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, domain.ErrChallengeNotFound
	}

	attempts, _ := strconv.Atoi(fields["attempts"])
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode challenge %s: %w", requestID, err)
	}
	expiresAt, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode challenge %s: %w", requestID, err)
	}

	return &domain.Challenge{
		RequestID:       requestID,
		IdentityKey:     fields["identity_key"],
		UserID:          fields["user_id"],
		CountryCode:     fields["country_code"],
		PhoneNumber:     fields["phone_number"],
		FullPhoneNumber: fields["full_phone_number"],
		CodeDigest:      fields["digest"],
		Salt:            fields["salt"],
		Attempts:        attempts,
		CreatedAt:       time.UnixMilli(createdAt).UTC(),
		ExpiresAt:       time.UnixMilli(expiresAt).UTC(),
	}, nil
}

// IncrementAttempts implements domain.ChallengeStore
func (r *ChallengeRedisStore) IncrementAttempts(ctx context.Context, requestID string) (int, error) {
	n, err := incrementScript.Run(ctx, r.client, []string{r.challengeKey(requestID)}).Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, domain.ErrChallengeNotFound
	}
	return n, nil
}

func (r *ChallengeRedisStore) remove(ctx context.Context, requestID string, tombstoneTTL time.Duration) (bool, error) {
	n, err := removeScript.Run(ctx, r.client,
		[]string{r.challengeKey(requestID)},
		r.latestPrefix(), requestID, r.expiredPrefix(), tombstoneTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Delete implements domain.ChallengeStore
func (r *ChallengeRedisStore) Delete(ctx context.Context, requestID string) (bool, error) {
	return r.remove(ctx, requestID, 0)
}

// Expire implements domain.ChallengeStore
func (r *ChallengeRedisStore) Expire(ctx context.Context, requestID string) error {
	_, err := r.remove(ctx, requestID, r.retention)
	return err
}

// ExpiredRecently implements domain.ChallengeStore
func (r *ChallengeRedisStore) ExpiredRecently(ctx context.Context, identityKey string) (bool, error) {
	n, err := r.client.Exists(ctx, r.expiredPrefix()+identityKey).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SweepExpired implements domain.ChallengeStore
func (r *ChallengeRedisStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	// Redis handles TTL automatically, so this is a no-op
	return 0, nil
}

// LastSendAt implements domain.ChallengeStore
func (r *ChallengeRedisStore) LastSendAt(ctx context.Context, identityKey string) (time.Time, bool, error) {
	ms, err := r.client.Get(ctx, r.lastSendPrefix()+identityKey).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms).UTC(), true, nil
}

// RecordSend implements domain.ChallengeStore
func (r *ChallengeRedisStore) RecordSend(ctx context.Context, identityKey string, at time.Time) error {
	return r.client.Set(ctx, r.lastSendPrefix()+identityKey, at.UnixMilli(), r.retention).Err()
}
