// Package hosted implements the identity provider gateway over a hosted
// GoTrue-style auth API: password grants, sign-up, OAuth authorization URLs,
// token refresh, and JWKS-backed token validation.
package hosted

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	goerrors "github.com/goliatone/go-errors"
)

// Provider implements auth.IdentityProvider against the hosted auth API.
type Provider struct {
	config Config
	client *http.Client
	logger auth.Logger
	now    func() time.Time

	mu            sync.Mutex
	session       *auth.ProviderSession
	handlers      map[int]auth.SessionChangeHandler
	nextHandlerID int
}

// Option customizes the provider.
type Option func(*Provider)

// WithLogger overrides the default logger.
func WithLogger(logger auth.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		if client != nil {
			p.client = client
		}
	}
}

// New creates a hosted identity provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		config:   cfg,
		client:   &http.Client{Timeout: cfg.timeout()},
		now:      time.Now,
		handlers: map[int]auth.SessionChangeHandler{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}

	return p, nil
}

var _ auth.IdentityProvider = (*Provider)(nil)

// tokenResponse is the provider's session payload shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func (r tokenResponse) toSession(now time.Time) *auth.ProviderSession {
	if r.AccessToken == "" {
		return nil
	}

	session := &auth.ProviderSession{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		AccountID:    r.User.ID,
		Email:        r.User.Email,
	}

	if r.ExpiresIn > 0 {
		expiresAt := now.Add(time.Duration(r.ExpiresIn) * time.Second)
		session.ExpiresAt = &expiresAt
	}

	return session
}

type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

func (e errorResponse) text() string {
	for _, s := range []string{e.Description, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

// GetSession returns the current provider session, refreshing it first when
// the access token has expired and a refresh token is available. A nil
// session with a nil error means no one is signed in.
func (p *Provider) GetSession(ctx context.Context) (*auth.ProviderSession, error) {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	if session == nil {
		return nil, nil
	}

	if session.Expired(p.now()) && session.RefreshToken != "" {
		return p.RefreshSession(ctx)
	}

	return cloneSession(session), nil
}

// SignInWithPassword exchanges email/password credentials for a session.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	var token tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=password", map[string]string{
		"email":    email,
		"password": password,
	}, "", &token)
	if err != nil {
		return nil, err
	}

	session := token.toSession(p.now())
	if session == nil {
		return nil, auth.ErrProvider.WithMetadata(map[string]any{
			"cause": "token response missing access token",
		})
	}

	p.setSession(session, auth.SessionEventSignedIn)
	return cloneSession(session), nil
}

// SignUp registers a new provider account. When the provider requires email
// confirmation it returns no session; both return values are nil in that
// case. A duplicate account surfaces as auth.ErrAccountExists.
func (p *Provider) SignUp(ctx context.Context, email, password, fullName string) (*auth.ProviderSession, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if fullName != "" {
		payload["data"] = map[string]string{"full_name": fullName}
	}

	var token tokenResponse
	if err := p.do(ctx, http.MethodPost, "/signup", payload, "", &token); err != nil {
		return nil, err
	}

	session := token.toSession(p.now())
	if session == nil {
		return nil, nil
	}

	p.setSession(session, auth.SessionEventSignedIn)
	return cloneSession(session), nil
}

// SignInWithOAuth builds the provider authorization URL for req. The caller
// drives the flow; AdoptSession hands the resulting session back.
func (p *Provider) SignInWithOAuth(_ context.Context, req auth.OAuthRequest) (string, error) {
	if strings.TrimSpace(req.Provider) == "" {
		return "", goerrors.New("oauth provider name is required", goerrors.CategoryBadInput)
	}

	query := url.Values{}
	query.Set("provider", req.Provider)
	if len(req.Scopes) > 0 {
		query.Set("scopes", strings.Join(req.Scopes, " "))
	}
	if req.RedirectTo != "" {
		query.Set("redirect_to", req.RedirectTo)
	}
	if req.SkipRedirect {
		query.Set("skip_http_redirect", "true")
	}

	return p.config.baseURL() + "/authorize?" + query.Encode(), nil
}

// AdoptSession installs a session obtained outside the provider's own HTTP
// flows, typically from a completed OAuth popup, and notifies listeners.
func (p *Provider) AdoptSession(session *auth.ProviderSession) {
	if session == nil || session.AccessToken == "" {
		return
	}
	p.setSession(cloneSession(session), auth.SessionEventSignedIn)
}

// RefreshSession exchanges the refresh token for a new session and notifies
// listeners with a token-refresh event.
func (p *Provider) RefreshSession(ctx context.Context) (*auth.ProviderSession, error) {
	p.mu.Lock()
	current := p.session
	p.mu.Unlock()

	if current == nil || current.RefreshToken == "" {
		return nil, auth.ErrProvider.WithMetadata(map[string]any{
			"cause": "no refresh token available",
		})
	}

	var token tokenResponse
	err := p.do(ctx, http.MethodPost, "/token?grant_type=refresh_token", map[string]string{
		"refresh_token": current.RefreshToken,
	}, "", &token)
	if err != nil {
		return nil, err
	}

	session := token.toSession(p.now())
	if session == nil {
		return nil, auth.ErrProvider.WithMetadata(map[string]any{
			"cause": "refresh response missing access token",
		})
	}

	p.setSession(session, auth.SessionEventTokenRefreshed)
	return cloneSession(session), nil
}

// SignOut revokes the session with the provider and clears it locally. The
// local session is cleared even when revocation fails; the returned error
// reports the revocation outcome.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	session := p.session
	p.mu.Unlock()

	var revokeErr error
	if session != nil && session.AccessToken != "" {
		revokeErr = p.do(ctx, http.MethodPost, "/logout", nil, session.AccessToken, nil)
	}

	p.setSession(nil, auth.SessionEventSignedOut)
	return revokeErr
}

// OnSessionChange registers a session change listener and returns its
// unsubscribe function.
func (p *Provider) OnSessionChange(handler auth.SessionChangeHandler) func() {
	if handler == nil {
		return func() {}
	}

	p.mu.Lock()
	p.nextHandlerID++
	id := p.nextHandlerID
	p.handlers[id] = handler
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.handlers, id)
		p.mu.Unlock()
	}
}

func (p *Provider) setSession(session *auth.ProviderSession, event auth.SessionEvent) {
	p.mu.Lock()
	p.session = session

	handlers := make([]auth.SessionChangeHandler, 0, len(p.handlers))
	for _, h := range p.handlers {
		handlers = append(handlers, h)
	}
	p.mu.Unlock()

	for _, handler := range handlers {
		handler(event, cloneSession(session))
	}
}

func (p *Provider) do(ctx context.Context, method, path string, payload any, bearer string, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "could not encode provider request")
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.config.baseURL()+path, body)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "could not build provider request")
	}

	req.Header.Set("Content-Type", "application/json")
	if p.config.APIKey != "" {
		req.Header.Set("apikey", p.config.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := p.client.Do(req)
	if err != nil {
		return auth.ErrProvider.WithMetadata(map[string]any{"cause": err.Error()})
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return auth.ErrProvider.WithMetadata(map[string]any{"cause": err.Error()})
	}

	if res.StatusCode >= 400 {
		return p.mapError(res.StatusCode, raw)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return auth.ErrProvider.WithMetadata(map[string]any{
				"cause": fmt.Sprintf("malformed provider response: %v", err),
			})
		}
	}

	return nil
}

func (p *Provider) mapError(status int, raw []byte) error {
	var parsed errorResponse
	_ = json.Unmarshal(raw, &parsed)
	text := parsed.text()

	lower := strings.ToLower(text)
	if strings.Contains(lower, "already registered") || strings.Contains(lower, "already exists") {
		return auth.ErrAccountExists
	}

	switch status {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		if strings.Contains(lower, "invalid") || strings.Contains(lower, "credentials") {
			return auth.ErrInvalidCredentials
		}
	}

	if p.logger != nil {
		p.logger.Warn("provider request failed: status=%d msg=%q", status, text)
	}

	return auth.ErrProvider.WithMetadata(map[string]any{
		"status": status,
		"cause":  text,
	})
}

func cloneSession(session *auth.ProviderSession) *auth.ProviderSession {
	if session == nil {
		return nil
	}
	clone := *session
	if session.ExpiresAt != nil {
		expiresAt := *session.ExpiresAt
		clone.ExpiresAt = &expiresAt
	}
	return &clone
}
