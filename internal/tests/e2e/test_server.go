package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/you/otpgate/domain"
	"github.com/you/otpgate/internal/app"
	"github.com/you/otpgate/internal/config"
	testconfig "github.com/you/otpgate/internal/tests/config"
)

// TestServer wraps the fully wired service behind an httptest server
type TestServer struct {
	Server    *httptest.Server
	Container *app.Container
	Config    *config.Config
	Webhook   *CaptureWebhook
	Client    *http.Client
}

// NewTestServer wires the real container against a capturing webhook
func NewTestServer(t *testing.T, overrides map[string]string) *TestServer {
	t.Helper()

	gin.SetMode(gin.TestMode)

	webhook := NewCaptureWebhook(t)
	env := map[string]string{"OTP_DISPATCH_WEBHOOK_URL": webhook.URL()}
	for k, v := range overrides {
		env[k] = v
	}
	cfg := testconfig.LoadTestConfig(t, env)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	container, err := app.NewContainer(ctx, cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}

	server := httptest.NewServer(container.Router())
	t.Cleanup(func() {
		server.Close()
		if err := container.Close(); err != nil {
			t.Logf("Warning: container close: %v", err)
		}
	})

	return &TestServer{
		Server:    server,
		Container: container,
		Config:    cfg,
		Webhook:   webhook,
		Client:    &http.Client{Timeout: 15 * time.Second},
	}
}

// PostJSON posts body to path and decodes the JSON response
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Failed to encode request: %v", err)
	}
	resp, err := ts.Client.Post(ts.Server.URL+path, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode, decode(t, resp.Body)
}

// Get issues a GET request and returns the status and raw body
func (ts *TestServer) Get(t *testing.T, path string) (int, string) {
	t.Helper()

	resp, err := ts.Client.Get(ts.Server.URL + path)
	if err != nil {
		t.Fatalf("GET %s failed: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}
	return resp.StatusCode, string(body)
}

func decode(t *testing.T, r io.Reader) map[string]interface{} {
	t.Helper()
	out := map[string]interface{}{}
	if err := json.NewDecoder(r).Decode(&out); err != nil && err != io.EOF {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return out
}

// CaptureWebhook records every dispatch payload it receives
type CaptureWebhook struct {
	server   *httptest.Server
	mu       sync.Mutex
	payloads []domain.DispatchPayload
	status   int
}

// NewCaptureWebhook starts a webhook that answers 200 until told otherwise
func NewCaptureWebhook(t *testing.T) *CaptureWebhook {
	t.Helper()

	w := &CaptureWebhook{status: http.StatusOK}
	w.server = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		var p domain.DispatchPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			rw.WriteHeader(http.StatusBadRequest)
			return
		}
		w.mu.Lock()
		status := w.status
		if status < 300 {
			w.payloads = append(w.payloads, p)
		}
		w.mu.Unlock()
		rw.WriteHeader(status)
	}))
	t.Cleanup(w.server.Close)
	return w
}

// URL returns the webhook endpoint
func (w *CaptureWebhook) URL() string {
	return w.server.URL
}

// RespondWith makes subsequent deliveries answer with status
func (w *CaptureWebhook) RespondWith(status int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.status = status
}

// Last returns the most recent delivered payload
func (w *CaptureWebhook) Last(t *testing.T) domain.DispatchPayload {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.payloads) == 0 {
		t.Fatal("no otp was delivered to the webhook")
	}
	return w.payloads[len(w.payloads)-1]
}

// Count returns how many payloads were delivered
func (w *CaptureWebhook) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.payloads)
}
