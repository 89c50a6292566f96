package domain

import (
	"context"
	"time"
)

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// OTP events
	OTPSentEvent          AuditEventType = "OTP_SENT"
	OTPSendFailureEvent   AuditEventType = "OTP_SEND_FAILED"
	OTPVerifiedEvent      AuditEventType = "OTP_VERIFIED"
	OTPVerifyFailureEvent AuditEventType = "OTP_VERIFICATION_FAILED"

	// Profile events
	ProfilePersistedEvent      AuditEventType = "PROFILE_PERSISTED"
	ProfilePersistFailureEvent AuditEventType = "PROFILE_PERSIST_FAILED"
	OperatorListGrantedEvent   AuditEventType = "OPERATOR_LIST_GRANTED"
	OperatorListDeniedEvent    AuditEventType = "OPERATOR_LIST_DENIED"
)

// AuditEvent represents a business event that occurred in the system
type AuditEvent struct {
	EventType AuditEventType         `json:"event_type"`
	UserID    string                 `json:"user_id"`
	Phone     string                 `json:"phone,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	ErrorMsg  string                 `json:"error_msg,omitempty"`
	Success   bool                   `json:"success"`
}

// AuditLogger defines operations for audit logging
type AuditLogger interface {
	LogEvent(ctx context.Context, event *AuditEvent) error
}

// NewAuditEvent creates a new audit event with common fields populated
func NewAuditEvent(eventType AuditEventType, userID string) *AuditEvent {
	return &AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Timestamp: time.Now().UTC(),
		Metadata:  make(map[string]interface{}),
		Success:   true,
	}
}

// WithError sets error information on the audit event
func (e *AuditEvent) WithError(err error) *AuditEvent {
	e.Success = false
	if err != nil {
		e.ErrorMsg = err.Error()
	}
	return e
}

// WithPhone sets the phone field
func (e *AuditEvent) WithPhone(phone string) *AuditEvent {
	e.Phone = phone
	return e
}

// WithRequestID sets the challenge reference
func (e *AuditEvent) WithRequestID(requestID string) *AuditEvent {
	e.RequestID = requestID
	return e
}

// WithMetadata adds metadata to the event
func (e *AuditEvent) WithMetadata(key string, value interface{}) *AuditEvent {
	e.Metadata[key] = value
	return e
}

// MaskPhone keeps the last four digits, e.g. "+1******4567"
func MaskPhone(phone string) string {
	if len(phone) <= 4 {
		return phone
	}
	prefix := ""
	if phone[0] == '+' {
		prefix = "+"
		phone = phone[1:]
	}
	if len(phone) <= 4 {
		return prefix + phone
	}
	masked := make([]byte, len(phone))
	for i := range phone {
		if i < len(phone)-4 && i > 0 {
			masked[i] = '*'
		} else {
			masked[i] = phone[i]
		}
	}
	return prefix + string(masked)
}
