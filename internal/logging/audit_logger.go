package logging

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
)

// AuditLogger implements domain.AuditLogger on top of zerolog
type AuditLogger struct {
	logger zerolog.Logger
}

// NewAuditLogger creates an audit logger writing to logger
func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With().Str("component", "audit").Logger()}
}

// LogEvent writes one structured line per event; failures are logged at warn level
func (a *AuditLogger) LogEvent(ctx context.Context, event *domain.AuditEvent) error {
	level := zerolog.InfoLevel
	if !event.Success {
		level = zerolog.WarnLevel
	}

	e := a.logger.WithLevel(level).
		Str("event_type", string(event.EventType)).
		Str("user_id", event.UserID).
		Time("event_time", event.Timestamp).
		Bool("success", event.Success)
	if event.Phone != "" {
		e = e.Str("phone", event.Phone)
	}
	if event.RequestID != "" {
		e = e.Str("request_id", event.RequestID)
	}
	if event.ErrorMsg != "" {
		e = e.Str("error", event.ErrorMsg)
	}
	if len(event.Metadata) > 0 {
		e = e.Interface("metadata", event.Metadata)
	}
	if id, ok := RequestIDFrom(ctx); ok {
		e = e.Str("http_request_id", id)
	}
	e.Msg("audit")
	return nil
}

var _ domain.AuditLogger = (*AuditLogger)(nil)
