// Package backend implements the application API gateway: user, clinic and
// company lookups, provisioning, and clinic-local logins over HTTP.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Client implements auth.Backend against the clinic management API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  auth.Logger

	mu     sync.RWMutex
	bearer string
}

// Option customizes the client.
type Option func(*Client)

// WithLogger overrides the default logger.
func WithLogger(logger auth.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.client = client
		}
	}
}

// New creates a backend gateway rooted at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("backend: base URL is required")
	}

	c := &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 15 * time.Second},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c, nil
}

var _ auth.Backend = (*Client)(nil)

// SetBearerToken installs the token sent on subsequent requests.
func (c *Client) SetBearerToken(token string) {
	c.mu.Lock()
	c.bearer = token
	c.mu.Unlock()
}

// ClearToken removes the bearer token.
func (c *Client) ClearToken() {
	c.mu.Lock()
	c.bearer = ""
	c.mu.Unlock()
}

func (c *Client) bearerToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bearer
}

// CurrentUser resolves the application user behind the current bearer token.
// A provider identity with no application record yields auth.ErrUserNotFound.
func (c *Client) CurrentUser(ctx context.Context) (*auth.User, error) {
	var user auth.User
	if err := c.do(ctx, http.MethodGet, "/api/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// User fetches a user by ID.
func (c *Client) User(ctx context.Context, id int64) (*auth.User, error) {
	var user auth.User
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/users/%d", id), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Clinic fetches a clinic by ID.
func (c *Client) Clinic(ctx context.Context, id int64) (*auth.Clinic, error) {
	var clinic auth.Clinic
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/clinics/%d", id), nil, &clinic); err != nil {
		return nil, err
	}
	return &clinic, nil
}

// Company fetches a company by ID.
func (c *Client) Company(ctx context.Context, id int64) (*auth.Company, error) {
	var company auth.Company
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/companies/%d", id), nil, &company); err != nil {
		return nil, err
	}
	return &company, nil
}

// CreateCompany provisions a company.
func (c *Client) CreateCompany(ctx context.Context, company *auth.Company) (*auth.Company, error) {
	var created auth.Company
	if err := c.do(ctx, http.MethodPost, "/api/companies", company, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// CreateUser provisions a user.
func (c *Client) CreateUser(ctx context.Context, user *auth.User) (*auth.User, error) {
	var created auth.User
	if err := c.do(ctx, http.MethodPost, "/api/users", user, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// LoginClinicUser authenticates a clinic worker with username and password.
func (c *Client) LoginClinicUser(ctx context.Context, username, password string) (*auth.ClinicLogin, error) {
	var login auth.ClinicLogin
	err := c.do(ctx, http.MethodPost, "/api/clinics/login", map[string]string{
		"username": username,
		"password": password,
	}, &login)
	if err != nil {
		return nil, err
	}
	return &login, nil
}

// LoginClinicUserPinless authenticates a clinic worker without a PIN, used by
// clinics that disabled per-user PINs.
func (c *Client) LoginClinicUserPinless(ctx context.Context, username string) (*auth.ClinicLogin, error) {
	var login auth.ClinicLogin
	err := c.do(ctx, http.MethodPost, "/api/clinics/login/pinless", map[string]string{
		"username": username,
	}, &login)
	if err != nil {
		return nil, err
	}
	return &login, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode backend request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not build backend request")
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token := c.bearerToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.client.Do(req)
	if err != nil {
		return auth.ErrBackendUnavailable.WithMetadata(map[string]any{
			"path":  path,
			"cause": err.Error(),
		})
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return auth.ErrBackendUnavailable.WithMetadata(map[string]any{
			"path":  path,
			"cause": err.Error(),
		})
	}

	if res.StatusCode >= 400 {
		return c.mapError(method, path, res.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return auth.ErrBackendUnavailable.WithMetadata(map[string]any{
				"path":  path,
				"cause": fmt.Sprintf("malformed backend response: %v", err),
			})
		}
	}

	return nil
}

func (c *Client) mapError(method, path string, status int, raw []byte) error {
	var parsed struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	_ = json.Unmarshal(raw, &parsed)

	text := parsed.Message
	if text == "" {
		text = parsed.Error
	}

	switch status {
	case http.StatusNotFound:
		if path == "/api/users/me" {
			return auth.ErrUserNotFound
		}
		return goerrors.New(
			fmt.Sprintf("%s %s: not found", method, path),
			goerrors.CategoryNotFound,
		).WithCode(goerrors.CodeNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return auth.ErrInvalidCredentials
	}

	if c.logger != nil {
		c.logger.Warn("backend request failed: %s %s status=%d msg=%q", method, path, status, text)
	}

	return auth.ErrBackendUnavailable.WithMetadata(map[string]any{
		"path":   path,
		"status": status,
		"cause":  text,
	})
}
