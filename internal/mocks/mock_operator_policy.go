package mocks

import "github.com/you/otpgate/domain"

// MockOperatorPolicy implements domain.OperatorPolicy interface for testing
type MockOperatorPolicy struct {
	CanListProfilesFunc func(userID string) (bool, error)
	Operators           map[string]bool
}

// NewMockOperatorPolicy creates a policy allowing the given identities
func NewMockOperatorPolicy(operators ...string) *MockOperatorPolicy {
	m := &MockOperatorPolicy{Operators: make(map[string]bool)}
	for _, id := range operators {
		m.Operators[id] = true
	}
	return m
}

// CanListProfiles reports whether userID is an operator
func (m *MockOperatorPolicy) CanListProfiles(userID string) (bool, error) {
	if m.CanListProfilesFunc != nil {
		return m.CanListProfilesFunc(userID)
	}
	return m.Operators[userID], nil
}

// Compile-time interface compliance verification
var _ domain.OperatorPolicy = (*MockOperatorPolicy)(nil)
