package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/mocks"
)

func performRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		_ = json.NewEncoder(&buf).Encode(b)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

func setupOTPRouter(svc domain.OTPService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewOTPHandlers(svc)
	r := gin.New()
	r.GET("/api/otp/health", h.Health)
	r.POST("/api/otp/send", h.Send)
	r.POST("/api/otp/verify", h.Verify)
	return r
}

func TestOTPHandlers_Send(t *testing.T) {
	expiresAt := time.UnixMilli(1767225900000)

	tests := []struct {
		name           string
		body           interface{}
		setupMocks     func(*mocks.MockOTPService)
		expectedStatus int
		validate       func(t *testing.T, body map[string]interface{})
	}{
		{
			name: "successful send",
			body: map[string]interface{}{"userId": " user_1 ", "countryCode": "+1", "phoneNumber": "555-123-4567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					if target.UserID != "user_1" || target.PhoneNumber != "5551234567" {
						return nil, domain.ErrInvalidPayload
					}
					return &domain.IssuedChallenge{RequestID: "r1", ExpiresAt: expiresAt}, nil
				}
			},
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["ok"] != true || body["requestId"] != "r1" {
					t.Errorf("unexpected body %v", body)
				}
				if body["expiresAt"] != float64(1767225900000) {
					t.Errorf("expected epoch millis expiresAt, got %v", body["expiresAt"])
				}
			},
		},
		{
			name:           "malformed json",
			body:           "{not json",
			expectedStatus: http.StatusBadRequest,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != MsgInvalidPayload {
					t.Errorf("unexpected error %v", body["error"])
				}
			},
		},
		{
			name: "invalid payload",
			body: map[string]interface{}{"userId": "user_1"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, domain.ErrInvalidPayload
				}
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "phone linked elsewhere",
			body: map[string]interface{}{"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, domain.ErrPhoneLinkedElsewhere
				}
			},
			expectedStatus: http.StatusConflict,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != domain.PhoneLinkedMessage {
					t.Errorf("unexpected error %v", body["error"])
				}
			},
		},
		{
			name: "cooldown",
			body: map[string]interface{}{"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, &domain.RateLimitError{RetryAfter: 30 * time.Second}
				}
			},
			expectedStatus: http.StatusTooManyRequests,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["retryAfterMs"] != float64(30000) {
					t.Errorf("expected retryAfterMs 30000, got %v", body["retryAfterMs"])
				}
			},
		},
		{
			name: "dispatch timeout",
			body: map[string]interface{}{"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, &domain.DispatchError{Kind: domain.DispatchTimeout, Err: context.DeadlineExceeded}
				}
			},
			expectedStatus: http.StatusBadGateway,
		},
		{
			name: "upstream rate limited",
			body: map[string]interface{}{"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, domain.NewRejectedDispatch(429, "slow down")
				}
			},
			expectedStatus: http.StatusTooManyRequests,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != "OTP delivery failed with HTTP 429." {
					t.Errorf("unexpected error %v", body["error"])
				}
			},
		},
		{
			name: "unexpected failure",
			body: map[string]interface{}{"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567"},
			setupMocks: func(svc *mocks.MockOTPService) {
				svc.SendFunc = func(ctx context.Context, target domain.PhoneTarget) (*domain.IssuedChallenge, error) {
					return nil, context.Canceled
				}
			},
			expectedStatus: http.StatusInternalServerError,
			validate: func(t *testing.T, body map[string]interface{}) {
				if body["error"] != MsgServerError {
					t.Errorf("unexpected error %v", body["error"])
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := mocks.NewMockOTPService()
			if tt.setupMocks != nil {
				tt.setupMocks(svc)
			}
			w := performRequest(setupOTPRouter(svc), http.MethodPost, "/api/otp/send", tt.body)

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.expectedStatus, w.Code, w.Body.String())
			}
			body := decodeBody(t, w)
			if tt.expectedStatus != http.StatusOK && body["ok"] != false {
				t.Errorf("expected ok=false, got %v", body["ok"])
			}
			if tt.validate != nil {
				tt.validate(t, body)
			}
		})
	}
}

func TestOTPHandlers_Verify(t *testing.T) {
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"userId": "user_1", "countryCode": "+1", "phoneNumber": "5551234567",
			"requestId": "r1", "otp": "1234",
		}
	}

	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{name: "invalid payload", err: domain.ErrInvalidPayload, expectedStatus: http.StatusBadRequest, expectedError: MsgInvalidPayload},
		{name: "not found", err: domain.ErrOTPNotFound, expectedStatus: http.StatusNotFound, expectedError: "OTP request not found."},
		{name: "expired", err: domain.ErrOTPExpired, expectedStatus: http.StatusGone, expectedError: "OTP expired."},
		{name: "attempts exceeded", err: domain.ErrOTPMaxAttempts, expectedStatus: http.StatusTooManyRequests, expectedError: "Maximum OTP attempts exceeded."},
		{name: "invalid code", err: domain.ErrOTPInvalid, expectedStatus: http.StatusUnauthorized, expectedError: "Invalid OTP."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := mocks.NewMockOTPService()
			svc.VerifyFunc = func(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
				return nil, tt.err
			}
			w := performRequest(setupOTPRouter(svc), http.MethodPost, "/api/otp/verify", base())

			if w.Code != tt.expectedStatus {
				t.Fatalf("expected status %d, got %d", tt.expectedStatus, w.Code)
			}
			if body := decodeBody(t, w); body["error"] != tt.expectedError {
				t.Errorf("expected error %q, got %v", tt.expectedError, body["error"])
			}
		})
	}

	t.Run("success with contact fields", func(t *testing.T) {
		svc := mocks.NewMockOTPService()
		var got domain.VerifyRequest
		svc.VerifyFunc = func(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
			got = req
			return &domain.VerifyResult{
				UserID:          req.Target.UserID,
				FullPhoneNumber: req.Target.FullPhoneNumber(),
				Persistence:     domain.Persistence{Persisted: false, Reason: "Profile store is not configured."},
			}, nil
		}

		body := base()
		body["otp"] = 1234
		body["email"] = "  ada@example.com "
		body["fullName"] = 42
		w := performRequest(setupOTPRouter(svc), http.MethodPost, "/api/otp/verify", body)

		if w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
		}
		resp := decodeBody(t, w)
		if resp["verified"] != true || resp["fullPhoneNumber"] != "+15551234567" || resp["userId"] != "user_1" {
			t.Errorf("unexpected body %v", resp)
		}
		persistence, _ := resp["persistence"].(map[string]interface{})
		if persistence["persisted"] != false || persistence["reason"] != "Profile store is not configured." {
			t.Errorf("unexpected persistence %v", persistence)
		}

		if got.Code != "1234" {
			t.Errorf("numeric otp should be accepted, got %q", got.Code)
		}
		if got.Contact.Email == nil || *got.Contact.Email != "ada@example.com" {
			t.Errorf("email should be trimmed, got %v", got.Contact.Email)
		}
		if got.Contact.FullName != nil {
			t.Error("non-string contact fields should be dropped")
		}
		if got.Contact.Address != nil {
			t.Error("absent contact fields should stay nil")
		}
	})
}

func TestOTPHandlers_Health(t *testing.T) {
	w := performRequest(setupOTPRouter(mocks.NewMockOTPService()), http.MethodGet, "/api/otp/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if body := decodeBody(t, w); body["ok"] != true {
		t.Errorf("unexpected body %v", body)
	}
}
