package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/you/otpgate/internal/mocks"
)

func TestIdentityMiddleware(t *testing.T) {
	verifier := mocks.NewMockIdentityVerifier()
	verifier.Tokens["good-token"] = "user_1"

	tests := []struct {
		name           string
		authHeader     string
		expectedStatus int
	}{
		{name: "missing header", expectedStatus: http.StatusUnauthorized},
		{name: "wrong scheme", authHeader: "Basic abc", expectedStatus: http.StatusUnauthorized},
		{name: "scheme only", authHeader: "Bearer", expectedStatus: http.StatusUnauthorized},
		{name: "invalid token", authHeader: "Bearer nope", expectedStatus: http.StatusUnauthorized},
		{name: "valid token", authHeader: "Bearer good-token", expectedStatus: http.StatusOK},
		{name: "lowercase scheme", authHeader: "bearer  good-token ", expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			var handlerBody string
			r.POST("/api/otp/send", NewIdentityMW(verifier).Require(), func(c *gin.Context) {
				b, _ := io.ReadAll(c.Request.Body)
				handlerBody = string(b)
				subject, ok := SubjectFrom(c)
				c.JSON(http.StatusOK, gin.H{"subject": subject, "present": ok})
			})

			body := `{"userId":"anyone"}`
			req := httptest.NewRequest(http.MethodPost, "/api/otp/send", strings.NewReader(body))
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code, w.Body.String())
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, body, handlerBody, "body is left for the handler")
				assert.JSONEq(t, `{"subject":"user_1","present":true}`, w.Body.String())
			} else {
				assert.Contains(t, w.Body.String(), `"ok":false`)
			}
		})
	}
}

func TestIdentityMW_Disabled(t *testing.T) {
	mw := NewIdentityMW(nil)
	assert.False(t, mw.Enabled())

	r := gin.New()
	r.POST("/api/otp/send", mw.Require(), func(c *gin.Context) {
		_, ok := SubjectFrom(c)
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/otp/send", strings.NewReader(`{"userId":"anyone"}`)))
	assert.Equal(t, http.StatusOK, w.Code)
}
