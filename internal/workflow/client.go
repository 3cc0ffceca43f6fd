// Package workflow calls the external automation endpoints that answer
// queries and perform provider-side actions.
package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// UpstreamError is a non-2xx response from a workflow endpoint. The
// upstream status is folded into the message shown to the caller.
type UpstreamError struct {
	Path   string
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("workflow %s failed (%d): %s", e.Path, e.Status, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) post(ctx context.Context, path string, payload any) (map[string]any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("workflow %s: decode response: %w", path, err)
	}
	return data, nil
}

// Query forwards a question to the mapped query workflow and relays its
// textual response verbatim.
func (c *Client) Query(ctx context.Context, path string, payload map[string]any) (string, error) {
	data, err := c.post(ctx, path, payload)
	if err != nil {
		return "", err
	}
	if text, ok := data["response"].(string); ok && text != "" {
		return text, nil
	}
	return "No response from workflow", nil
}

// Act invokes an external action workflow and returns its result body.
func (c *Client) Act(ctx context.Context, path string, payload map[string]any) (map[string]any, error) {
	data, err := c.post(ctx, path, payload)
	if err != nil {
		return nil, err
	}
	if result, ok := data["result"].(map[string]any); ok {
		return result, nil
	}
	return data, nil
}
