// Package convex talks to a Convex deployment over its HTTP query and mutation API.
package convex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrFunction is wrapped by errors the deployment reported for a function call
var ErrFunction = errors.New("convex function error")

// Client calls Convex functions with deployment admin credentials
type Client struct {
	baseURL    string
	adminKey   string
	httpClient *http.Client
}

// NewClient creates a client for the deployment at baseURL
func NewClient(baseURL, adminKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminKey:   adminKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type functionRequest struct {
	Path   string                 `json:"path"`
	Args   map[string]interface{} `json:"args"`
	Format string                 `json:"format"`
}

type functionResponse struct {
	Status       string          `json:"status"`
	Value        json.RawMessage `json:"value"`
	ErrorMessage string          `json:"errorMessage"`
}

// Query runs a query function and decodes its value into out (out may be nil)
func (c *Client) Query(ctx context.Context, path string, args map[string]interface{}, out interface{}) error {
	return c.call(ctx, "/api/query", path, args, out)
}

// Mutation runs a mutation function and decodes its value into out (out may be nil)
func (c *Client) Mutation(ctx context.Context, path string, args map[string]interface{}, out interface{}) error {
	return c.call(ctx, "/api/mutation", path, args, out)
}

func (c *Client) call(ctx context.Context, endpoint, path string, args map[string]interface{}, out interface{}) error {
	if args == nil {
		args = map[string]interface{}{}
	}
	raw, err := json.Marshal(functionRequest{Path: path, Args: args, Format: "json"})
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Convex "+c.adminKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	var decoded functionResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return fmt.Errorf("call %s: HTTP %d: %s", path, resp.StatusCode, snippet(body))
		}
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	if decoded.Status == "error" {
		return fmt.Errorf("%w: %s: %s", ErrFunction, path, decoded.ErrorMessage)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("call %s: HTTP %d: %s", path, resp.StatusCode, snippet(body))
	}
	if decoded.Status != "success" {
		return fmt.Errorf("call %s: unexpected status %q", path, decoded.Status)
	}

	if out == nil || len(decoded.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(decoded.Value, out); err != nil {
		return fmt.Errorf("decode %s value: %w", path, err)
	}
	return nil
}

func snippet(b []byte) string {
	if len(b) > 200 {
		b = b[:200]
	}
	return string(b)
}
