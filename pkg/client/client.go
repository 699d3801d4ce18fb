// Package client talks to a running chat relay over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pario-ai/chatrelay/pkg/models"
)

// APIError is a non-2xx response from the relay.
type APIError struct {
	StatusCode int
	Body       models.ErrorResponse
}

func (e *APIError) Error() string {
	if e.Body.Details != "" {
		return fmt.Sprintf("relay returned %d: %s: %s", e.StatusCode, e.Body.Error, e.Body.Details)
	}
	return fmt.Sprintf("relay returned %d: %s", e.StatusCode, e.Body.Error)
}

// Reply is a successful chat response plus the relay's response metadata.
type Reply struct {
	models.ChatResponse
	CacheHit  bool
	RequestID string
}

// Client calls the relay's HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the relay at baseURL, e.g. "http://localhost:3000".
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Chat sends a conversation and returns the relay's reply.
func (c *Client) Chat(ctx context.Context, turns []models.ConversationTurn) (*Reply, error) {
	body, err := json.Marshal(models.ChatBody{Messages: turns})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/chat", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Reply
	if err := json.NewDecoder(resp.Body).Decode(&out.ChatResponse); err != nil {
		return nil, fmt.Errorf("decode reply: %w", err)
	}
	out.CacheHit = resp.Header.Get("X-Cache") == "hit"
	out.RequestID = resp.Header.Get("X-Request-ID")
	return &out, nil
}

// Stats fetches cache and usage statistics, including up to recent of the
// newest usage records.
func (c *Client) Stats(ctx context.Context, recent int) (*models.StatsResponse, error) {
	path := "/api/stats"
	if recent > 0 {
		path += "?recent=" + strconv.Itoa(recent)
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out models.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode stats: %w", err)
	}
	return &out, nil
}

// Health returns the body of the root health probe.
func (c *Client) Health(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodGet, "/", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read health: %w", err)
	}
	return string(data), nil
}

// do sends a request and turns non-2xx responses into *APIError.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, _ := io.ReadAll(resp.Body)
		if json.Unmarshal(data, &apiErr.Body) != nil || apiErr.Body.Error == "" {
			apiErr.Body.Error = strings.TrimSpace(string(data))
		}
		return nil, apiErr
	}
	return resp, nil
}
