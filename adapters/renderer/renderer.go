// Package renderer provides the HTTP adapter for the generation
// backend. The backend is an opaque collaborator: the gate admits the
// action first, then this client executes it with a bounded timeout.
package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hoaworks/metergate/domain/quota"
	"github.com/hoaworks/metergate/ports"
)

// ErrUnavailable marks the generation backend as unreachable or timed
// out, distinct from a business denial.
var ErrUnavailable = errors.New("render backend unavailable")

// Client calls the generation backend over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a renderer client with a bounded per-call timeout.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type renderRequest struct {
	Feature string          `json:"feature"`
	Params  json.RawMessage `json:"params"`
}

type renderResponse struct {
	URL string `json:"url"`
}

// Render submits the generation job and returns the artifact URL.
func (c *Client) Render(ctx context.Context, feature quota.Feature, params string) (string, error) {
	body, err := json.Marshal(renderRequest{
		Feature: string(feature),
		Params:  json.RawMessage(params),
	})
	if err != nil {
		return "", fmt.Errorf("encode render request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("render rejected: status %d: %s", resp.StatusCode, msg)
	}

	var rr renderResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("decode render response: %w", err)
	}
	return rr.URL, nil
}

// Ensure interface compliance.
var _ ports.Renderer = (*Client)(nil)
