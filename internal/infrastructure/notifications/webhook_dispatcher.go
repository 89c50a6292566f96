package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/you/otpgate/domain"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookDispatcher implements domain.Dispatcher by POSTing the payload to a delivery webhook
type WebhookDispatcher struct {
	url        string
	timeout    time.Duration
	httpClient *http.Client
}

// NewWebhookDispatcher creates a dispatcher bounded by timeout per call
func NewWebhookDispatcher(url string, timeout time.Duration) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookDispatcher{
		url:        url,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

// Send implements domain.Dispatcher
func (w *WebhookDispatcher) Send(ctx context.Context, payload domain.DispatchPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return &domain.DispatchError{Kind: domain.DispatchTransport, Err: fmt.Errorf("encode payload: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(raw))
	if err != nil {
		return &domain.DispatchError{Kind: domain.DispatchTransport, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxDispatchBodySnippet))
		return domain.NewRejectedDispatch(resp.StatusCode, string(b))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func classifyTransportError(err error) *domain.DispatchError {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &domain.DispatchError{Kind: domain.DispatchTimeout, Err: err}
	}
	return &domain.DispatchError{Kind: domain.DispatchTransport, Err: err}
}
