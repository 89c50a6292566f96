package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/you/otpgate/domain"
)

// ChallengeMemoryStore implements domain.ChallengeStore in process memory.
// Challenges do not survive a restart.
type ChallengeMemoryStore struct {
	mu         sync.Mutex
	byID       map[string]*domain.Challenge
	latest     map[string]string
	lastSend   map[string]time.Time
	tombstones map[string]time.Time
	retention  time.Duration
	nowF       func() time.Time
}

// NewChallengeMemoryStore creates a store that remembers expiries and send stamps for retention
func NewChallengeMemoryStore(retention time.Duration) *ChallengeMemoryStore {
	return &ChallengeMemoryStore{
		byID:       make(map[string]*domain.Challenge),
		latest:     make(map[string]string),
		lastSend:   make(map[string]time.Time),
		tombstones: make(map[string]time.Time),
		retention:  retention,
		nowF:       time.Now,
	}
}

// WithClock replaces the time source, for tests
func (s *ChallengeMemoryStore) WithClock(now func() time.Time) *ChallengeMemoryStore {
	s.nowF = now
	return s
}

// Put implements domain.ChallengeStore
func (s *ChallengeMemoryStore) Put(ctx context.Context, challenge *domain.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[challenge.RequestID] = challenge.Clone()
	s.latest[challenge.IdentityKey] = challenge.RequestID
	delete(s.tombstones, challenge.IdentityKey)
	return nil
}

// Candidates implements domain.ChallengeStore
func (s *ChallengeMemoryStore) Candidates(ctx context.Context, identityKey, requestID string) ([]*domain.Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Challenge
	latestID, ok := s.latest[identityKey]
	if ok {
		if c, found := s.byID[latestID]; found && c.IdentityKey == identityKey {
			out = append(out, c.Clone())
		}
	}
	if requestID != "" && requestID != latestID {
		if c, found := s.byID[requestID]; found && c.IdentityKey == identityKey {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}

// IncrementAttempts implements domain.ChallengeStore
func (s *ChallengeMemoryStore) IncrementAttempts(ctx context.Context, requestID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[requestID]
	if !ok {
		return 0, domain.ErrChallengeNotFound
	}
	c.Attempts++
	return c.Attempts, nil
}

// Delete implements domain.ChallengeStore
func (s *ChallengeMemoryStore) Delete(ctx context.Context, requestID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.removeLocked(requestID)
	if ok {
		delete(s.tombstones, c.IdentityKey)
	}
	return ok, nil
}

// Expire implements domain.ChallengeStore
func (s *ChallengeMemoryStore) Expire(ctx context.Context, requestID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.removeLocked(requestID); ok {
		s.tombstones[c.IdentityKey] = s.nowF()
	}
	return nil
}

// ExpiredRecently implements domain.ChallengeStore
func (s *ChallengeMemoryStore) ExpiredRecently(ctx context.Context, identityKey string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.tombstones[identityKey]
	if !ok {
		return false, nil
	}
	if s.nowF().Sub(at) >= s.retention {
		delete(s.tombstones, identityKey)
		return false, nil
	}
	return true, nil
}

// SweepExpired implements domain.ChallengeStore
func (s *ChallengeMemoryStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	swept := 0
	for id, c := range s.byID {
		if c.IsLive(now) {
			continue
		}
		s.removeLocked(id)
		s.tombstones[c.IdentityKey] = now
		swept++
	}
	for key, at := range s.tombstones {
		if now.Sub(at) >= s.retention {
			delete(s.tombstones, key)
		}
	}
	for key, at := range s.lastSend {
		if now.Sub(at) >= s.retention {
			delete(s.lastSend, key)
		}
	}
	return swept, nil
}

// LastSendAt implements domain.ChallengeStore
func (s *ChallengeMemoryStore) LastSendAt(ctx context.Context, identityKey string) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.lastSend[identityKey]
	return at, ok, nil
}

// RecordSend implements domain.ChallengeStore
func (s *ChallengeMemoryStore) RecordSend(ctx context.Context, identityKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSend[identityKey] = at
	return nil
}

// Len returns the number of stored challenges
func (s *ChallengeMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *ChallengeMemoryStore) removeLocked(requestID string) (*domain.Challenge, bool) {
	c, ok := s.byID[requestID]
	if !ok {
		return nil, false
	}
	delete(s.byID, requestID)
	if s.latest[c.IdentityKey] == requestID {
		delete(s.latest, c.IdentityKey)
	}
	return c, true
}
