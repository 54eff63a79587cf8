package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hallway-app/hallway/internal/pkg/env"
)

const defaultPaddleAPIBaseURL = "https://api.paddle.com"

// PaddleClient talks to the Paddle REST API. Only customer lookup is needed:
// a transaction can be the first event seen for a brand-new customer, in
// which case the email has to be fetched before local resolution can work.
type PaddleClient struct {
	APIKey     string
	APIBaseURL string

	HTTPClient *http.Client
}

// NewPaddleClientFromEnv builds a client from PADDLE_API_KEY and
// PADDLE_API_BASE_URL.
func NewPaddleClientFromEnv() *PaddleClient {
	return &PaddleClient{
		APIKey:     strings.TrimSpace(env.GetEnv("PADDLE_API_KEY", "")),
		APIBaseURL: strings.TrimRight(strings.TrimSpace(env.GetEnv("PADDLE_API_BASE_URL", defaultPaddleAPIBaseURL)), "/"),
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// GetCustomer fetches one customer by provider id.
func (c *PaddleClient) GetCustomer(ctx context.Context, customerID string) (*CustomerData, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return nil, errors.New("PADDLE_API_KEY is not configured")
	}
	id := strings.TrimSpace(customerID)
	if id == "" {
		return nil, errors.New("customer id is required")
	}

	endpoint := c.APIBaseURL + "/customers/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("paddle customer lookup failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var wrapper struct {
		Data rawCustomer `json:"data"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to decode paddle customer response: %w", err)
	}

	return &CustomerData{
		ID:    strings.TrimSpace(wrapper.Data.ID),
		Email: strings.TrimSpace(strings.ToLower(wrapper.Data.Email)),
		Name:  strings.TrimSpace(wrapper.Data.Name),
	}, nil
}
