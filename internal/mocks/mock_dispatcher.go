package mocks

import (
	"context"
	"sync"

	"github.com/you/otpgate/domain"
)

// MockDispatcher implements domain.Dispatcher interface for testing
type MockDispatcher struct {
	SendFunc func(ctx context.Context, payload domain.DispatchPayload) error

	mu   sync.Mutex
	sent []domain.DispatchPayload
}

// NewMockDispatcher creates a new MockDispatcher with default behaviors
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Send records the payload and delivers it
func (m *MockDispatcher) Send(ctx context.Context, payload domain.DispatchPayload) error {
	m.mu.Lock()
	m.sent = append(m.sent, payload)
	m.mu.Unlock()
	if m.SendFunc != nil {
		return m.SendFunc(ctx, payload)
	}
	// Default behavior: delivered
	return nil
}

// Sent returns every payload handed to Send
func (m *MockDispatcher) Sent() []domain.DispatchPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.DispatchPayload(nil), m.sent...)
}

// LastCode returns the plaintext code of the most recent dispatch
func (m *MockDispatcher) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].OTP
}

// Compile-time interface compliance verification
var _ domain.Dispatcher = (*MockDispatcher)(nil)
