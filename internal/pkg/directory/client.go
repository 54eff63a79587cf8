package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hallway-app/hallway/internal/pkg/env"
)

// ErrUserNotFound is returned when no directory user matches a lookup.
var ErrUserNotFound = errors.New("directory user not found")

// User is a directory user record. Attributes are string arrays, matching the
// directory's custom-attribute model.
type User struct {
	ID         string              `json:"id"`
	Email      string              `json:"email"`
	Attributes map[string][]string `json:"attributes"`
}

// Client talks to the identity directory's admin REST API. Admin calls are
// authenticated with a service-account token obtained via the client
// credentials grant and cached until shortly before expiry.
type Client struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret string

	TokenURL string

	HTTPClient *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClientFromEnv builds a directory client from DIRECTORY_* env keys.
func NewClientFromEnv() *Client {
	base := strings.TrimRight(strings.TrimSpace(env.GetEnv("DIRECTORY_BASE_URL", "")), "/")
	realm := strings.TrimSpace(env.GetEnv("DIRECTORY_REALM", "hallway"))

	tokenURL := strings.TrimSpace(env.GetEnv("DIRECTORY_TOKEN_URL", ""))
	if tokenURL == "" && base != "" {
		tokenURL = fmt.Sprintf("%s/realms/%s/protocol/openid-connect/token", base, realm)
	}

	return &Client{
		BaseURL:      base,
		Realm:        realm,
		ClientID:     strings.TrimSpace(env.GetEnv("DIRECTORY_CLIENT_ID", "")),
		ClientSecret: strings.TrimSpace(env.GetEnv("DIRECTORY_CLIENT_SECRET", "")),
		TokenURL:     tokenURL,
		HTTPClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

func (c *Client) adminToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return "", errors.New("DIRECTORY_CLIENT_ID/DIRECTORY_CLIENT_SECRET are not configured")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("directory token request failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("failed to decode directory token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("directory token response missing access_token")
	}

	c.token = tok.AccessToken
	// Renew a little early so in-flight requests do not race expiry.
	ttl := time.Duration(tok.ExpiresIn) * time.Second
	if ttl > 30*time.Second {
		ttl -= 30 * time.Second
	}
	c.tokenExpiry = time.Now().Add(ttl)
	return c.token, nil
}

func (c *Client) usersEndpoint() string {
	return fmt.Sprintf("%s/admin/realms/%s/users", c.BaseURL, c.Realm)
}

// GetUserByEmail finds the directory user with the exact email.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	q := url.Values{}
	q.Set("email", email)
	q.Set("exact", "true")
	return c.findOne(ctx, q)
}

// FindUserByAttribute finds a directory user by a custom attribute value.
func (c *Client) FindUserByAttribute(ctx context.Context, key, value string) (*User, error) {
	q := url.Values{}
	q.Set("q", key+":"+value)
	return c.findOne(ctx, q)
}

func (c *Client) findOne(ctx context.Context, query url.Values) (*User, error) {
	query.Set("max", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.usersEndpoint()+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}

	users, err := c.doUsers(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}
	return &users[0], nil
}

func (c *Client) doUsers(ctx context.Context, req *http.Request) ([]User, error) {
	token, err := c.adminToken(ctx)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("directory user lookup failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var users []User
	if err := json.Unmarshal(body, &users); err != nil {
		return nil, fmt.Errorf("failed to decode directory users response: %w", err)
	}
	return users, nil
}

// UpdateUserAttributes replaces the user's full attribute set. Callers that
// want merge semantics fetch first and merge before calling this.
func (c *Client) UpdateUserAttributes(ctx context.Context, userID string, attributes map[string][]string) error {
	token, err := c.adminToken(ctx)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]interface{}{
		"attributes": attributes,
	})
	if err != nil {
		return err
	}

	endpoint := c.usersEndpoint() + "/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return fmt.Errorf("directory attribute update failed: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
