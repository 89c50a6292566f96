package mocks

import (
	"fmt"
	"sync"

	"github.com/you/otpgate/domain"
)

// MockCodeHasher implements domain.CodeHasher interface for testing.
// Digests are reversible so tests can reason about them.
type MockCodeHasher struct {
	GenerateFunc func() (string, error)
	DigestFunc   func(code, salt string) (string, error)
	Code         string

	mu    sync.Mutex
	salts int
}

// NewMockCodeHasher creates a hasher that always generates code
func NewMockCodeHasher(code string) *MockCodeHasher {
	return &MockCodeHasher{Code: code}
}

// Generate returns the configured code
func (m *MockCodeHasher) Generate() (string, error) {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	return m.Code, nil
}

// NewSalt returns a unique salt
func (m *MockCodeHasher) NewSalt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.salts++
	return fmt.Sprintf("salt-%d", m.salts)
}

// Digest joins salt and code
func (m *MockCodeHasher) Digest(code, salt string) (string, error) {
	if m.DigestFunc != nil {
		return m.DigestFunc(code, salt)
	}
	return salt + ":" + code, nil
}

// Matches compares against the joined digest
func (m *MockCodeHasher) Matches(candidate, salt, storedDigest string) bool {
	return salt+":"+candidate == storedDigest
}

// Compile-time interface compliance verification
var _ domain.CodeHasher = (*MockCodeHasher)(nil)
