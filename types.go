package auth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// ProviderSession is a live session issued by the hosted identity provider.
// AccessToken doubles as the bearer token for backend calls.
type ProviderSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	AccountID    string     `json:"account_id,omitempty"`
	Email        string     `json:"email,omitempty"`
}

// Expired reports whether the session's access token is past its expiry.
// Sessions without an expiry are treated as live.
func (s *ProviderSession) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	if s.ExpiresAt == nil {
		return false
	}
	return now.After(*s.ExpiresAt)
}

// SessionEvent identifies a change in the provider-level session.
type SessionEvent string

const (
	SessionEventInitial        SessionEvent = "INITIAL_SESSION"
	SessionEventSignedIn       SessionEvent = "SIGNED_IN"
	SessionEventSignedOut      SessionEvent = "SIGNED_OUT"
	SessionEventTokenRefreshed SessionEvent = "TOKEN_REFRESHED"
)

// SessionChangeHandler receives provider session change notifications.
type SessionChangeHandler func(event SessionEvent, session *ProviderSession)

// OAuthRequest describes an authorization URL request made to the provider.
type OAuthRequest struct {
	Provider     string
	Scopes       []string
	RedirectTo   string
	SkipRedirect bool
}

// IdentityProvider is the hosted identity provider gateway. The machine treats
// it as a capability: a session source plus password, signup, and OAuth entry
// points. See provider/hosted for a concrete HTTP implementation.
type IdentityProvider interface {
	GetSession(ctx context.Context) (*ProviderSession, error)
	SignInWithPassword(ctx context.Context, email, password string) (*ProviderSession, error)
	SignUp(ctx context.Context, email, password, fullName string) (*ProviderSession, error)
	SignInWithOAuth(ctx context.Context, req OAuthRequest) (string, error)
	SignOut(ctx context.Context) error
	OnSessionChange(handler SessionChangeHandler) func()
}

// ClinicLogin is the outcome of a clinic-local login, which authenticates a
// worker against the application backend rather than the identity provider.
type ClinicLogin struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// Backend is the application API gateway used to resolve users, clinics and
// companies, and to perform clinic-local logins.
type Backend interface {
	SetBearerToken(token string)
	ClearToken()
	CurrentUser(ctx context.Context) (*User, error)
	User(ctx context.Context, id int64) (*User, error)
	Clinic(ctx context.Context, id int64) (*Clinic, error)
	Company(ctx context.Context, id int64) (*Company, error)
	CreateCompany(ctx context.Context, company *Company) (*Company, error)
	CreateUser(ctx context.Context, user *User) (*User, error)
	LoginClinicUser(ctx context.Context, username, password string) (*ClinicLogin, error)
	LoginClinicUserPinless(ctx context.Context, username string) (*ClinicLogin, error)
}

// PopupCoordinator runs one OAuth popup flow to completion. Open blocks until
// the popup reports success, the user abandons it, or the timeout elapses.
type PopupCoordinator interface {
	Open(ctx context.Context, authorizationURL string) (*ProviderSession, error)
}

// Store is the minimal durable key/value contract the session store writes
// through. Get returns (nil, nil) when the key is absent. Implementations must
// be safe to call from the machine's goroutine without further coordination.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Remove(ctx context.Context, key string) error
}

// RouteContext tells the machine what kind of window or route it is running
// in. Popup windows and the OAuth callback route own their own lifecycle and
// must not drive navigation, so initialization is skipped there.
type RouteContext interface {
	InPopup() bool
	OnOAuthCallback() bool
}

type defaultRouteContext struct{}

func (defaultRouteContext) InPopup() bool         { return false }
func (defaultRouteContext) OnOAuthCallback() bool { return false }

// Subscriber receives the machine's state change notifications.
type Subscriber func(state AuthState, session *AuthSession)

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
