// Package imagegen calls the workout summary image renderer. The call is
// fire-and-forget from the session lifecycle: a failure here never affects
// the result of ending a session.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lassorfeasley/swiper.fit-sub002/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type generateRequest struct {
	SessionID       string `json:"session_id"`
	CompletedSets   int    `json:"completed_sets"`
	DurationSeconds int    `json:"duration_seconds"`
}

type generateResponse struct {
	URL string `json:"url"`
}

// Generate renders the session's summary image and returns its URL.
func (c *Client) Generate(ctx context.Context, sessionID uuid.UUID, metrics domain.SessionMetrics) (string, error) {
	body, err := json.Marshal(generateRequest{
		SessionID:       sessionID.String(),
		CompletedSets:   metrics.CompletedSets,
		DurationSeconds: metrics.DurationSeconds,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("summary image request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("summary image renderer returned status %d", resp.StatusCode)
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode generate response: %w", err)
	}
	return out.URL, nil
}
