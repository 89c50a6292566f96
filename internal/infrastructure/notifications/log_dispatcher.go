package notifications

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/you/otpgate/domain"
)

// LogDispatcher implements domain.Dispatcher for local development.
// The code is only visible at debug level.
type LogDispatcher struct{}

// NewLogDispatcher creates a dispatcher that writes to the context logger
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{}
}

// Send implements domain.Dispatcher
func (LogDispatcher) Send(ctx context.Context, payload domain.DispatchPayload) error {
	zlog := zerolog.Ctx(ctx)
	zlog.Warn().
		Str("request_id", payload.RequestID).
		Str("phone", domain.MaskPhone(payload.FullPhoneNumber)).
		Msg("no otp transport configured, code not delivered")
	zlog.Debug().Str("request_id", payload.RequestID).Str("otp", payload.OTP).Msg("[DEV OTP]")
	return nil
}
