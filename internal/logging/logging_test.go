package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/otpgate/domain"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
		level   zerolog.Level
	}{
		{name: "defaults", cfg: Config{}, level: zerolog.InfoLevel},
		{name: "debug json", cfg: Config{Level: "DEBUG", Format: "json"}, level: zerolog.DebugLevel},
		{name: "console", cfg: Config{Level: "warn", Format: "console"}, level: zerolog.WarnLevel},
		{name: "bad level", cfg: Config{Level: "loud"}, wantErr: true},
		{name: "bad format", cfg: Config{Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.cfg.Output = &buf
			logger, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.level, logger.GetLevel())
			assert.Same(t, zerolog.DefaultContextLogger, zerolog.Ctx(context.Background()))
		})
	}
}

func TestAuditLogger_LogEvent(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(zerolog.New(&buf))

	ctx := WithRequestID(context.Background(), "req-1")
	event := domain.NewAuditEvent(domain.OTPSendFailureEvent, "user_1").
		WithPhone("+1******4567").
		WithRequestID("challenge-1").
		WithMetadata("dispatch_error", "timeout").
		WithError(errors.New("dispatch timeout"))

	require.NoError(t, audit.LogEvent(ctx, event))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "audit", line["component"])
	assert.Equal(t, "OTP_SEND_FAILED", line["event_type"])
	assert.Equal(t, "user_1", line["user_id"])
	assert.Equal(t, "+1******4567", line["phone"])
	assert.Equal(t, "challenge-1", line["request_id"])
	assert.Equal(t, "req-1", line["http_request_id"])
	assert.Equal(t, "dispatch timeout", line["error"])
	assert.Equal(t, false, line["success"])
	assert.Equal(t, map[string]interface{}{"dispatch_error": "timeout"}, line["metadata"])
}

func TestAuditLogger_SuccessIsInfo(t *testing.T) {
	var buf bytes.Buffer
	audit := NewAuditLogger(zerolog.New(&buf))

	require.NoError(t, audit.LogEvent(context.Background(), domain.NewAuditEvent(domain.OTPSentEvent, "user_1")))

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "info", line["level"])
	assert.NotContains(t, line, "metadata")
	assert.NotContains(t, line, "http_request_id")
}
