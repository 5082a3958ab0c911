// Package transport provides the HTTP client for the triage backend.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// ChatRequest is the outbound request body for a streaming chat turn.
// Field names are part of the wire contract with the backend.
type ChatRequest struct {
	Message   string  `json:"message"`
	SessionID string  `json:"session_id"`
	Mode      string  `json:"mode"`
	Image     *string `json:"image"`
	MimeType  *string `json:"mime_type"`
}

// Client talks to the triage backend.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// New creates a backend client. If endpoint is empty, uses the
// TRIAGE_SERVER_URL env var or defaults to localhost:8000.
func New(endpoint string) *Client {
	if endpoint == "" {
		endpoint = os.Getenv("TRIAGE_SERVER_URL")
	}
	if endpoint == "" {
		endpoint = "http://localhost:8000"
	}

	// No overall timeout: the response is an open-ended chunked stream
	// that ends on the server's end-of-stream signal.
	return &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
}

// Stream opens the single outbound streaming request for a turn and
// returns the raw chunked response body. The caller owns the body and
// must close it; cancelling ctx aborts the stream.
func (c *Client) Stream(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/stream", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("server error: %s - %s", resp.Status, string(msg))
	}

	return resp.Body, nil
}

// Health checks the backend health endpoint.
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/health", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: %s", resp.Status)
	}
	return nil
}
