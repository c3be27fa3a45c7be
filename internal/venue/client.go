// Package venue implements the outbound HTTP client for the external
// matching venue. The venue accepts order submissions and answers with
// the order id it assigned; fills arrive later over the bus.
package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/JustinMoon-exe/Flashbook/internal/model"
)

// Client submits orders to the venue's REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the venue API rooted at baseURL
// (e.g. http://127.0.0.1:8000/api/v1).
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type submitResponse struct {
	OrderID string `json:"order_id"`
	Detail  string `json:"detail"`
}

// SubmitOrder posts one order and returns the venue-assigned order id.
// Network failures, rejections, and malformed responses are all the
// same to the caller: the submission did not happen.
func (c *Client) SubmitOrder(ctx context.Context, req model.OrderRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("venue: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("venue: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("venue: submit order: %w", err)
	}
	defer resp.Body.Close()

	var sr submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("venue: decode response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if sr.Detail != "" {
			return "", fmt.Errorf("venue: order rejected (%d): %s", resp.StatusCode, sr.Detail)
		}
		return "", fmt.Errorf("venue: order rejected (%d)", resp.StatusCode)
	}
	if sr.OrderID == "" {
		return "", fmt.Errorf("venue: accepted response missing order_id")
	}
	return sr.OrderID, nil
}
