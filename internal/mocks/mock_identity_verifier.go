package mocks

import "github.com/you/otpgate/domain"

// MockIdentityVerifier implements domain.IdentityVerifier interface for testing
type MockIdentityVerifier struct {
	SubjectFunc func(token string) (string, error)
	Tokens      map[string]string
}

// NewMockIdentityVerifier creates a verifier that maps tokens to subjects
func NewMockIdentityVerifier() *MockIdentityVerifier {
	return &MockIdentityVerifier{Tokens: make(map[string]string)}
}

// Subject resolves a token to its subject
func (m *MockIdentityVerifier) Subject(token string) (string, error) {
	if m.SubjectFunc != nil {
		return m.SubjectFunc(token)
	}
	if sub, ok := m.Tokens[token]; ok {
		return sub, nil
	}
	return "", domain.ErrTokenInvalid
}

// Compile-time interface compliance verification
var _ domain.IdentityVerifier = (*MockIdentityVerifier)(nil)
