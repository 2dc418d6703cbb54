// Package popup coordinates the OAuth authorization window: it opens the
// authorization URL, waits for the completion message posted back by the
// window, enforces the flow timeout, and tears everything down with exactly
// one outcome per flow.
package popup

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
)

// Completion message contract. The callback window posts one of these back to
// whoever opened it.
const (
	MessageTypeSuccess = "OAUTH_SUCCESS"
	MessageTypeError   = "OAUTH_ERROR"
)

// Message is the terminal signal of one OAuth flow.
type Message struct {
	Type    string                `json:"type"`
	Session *auth.ProviderSession `json:"session,omitempty"`
	Error   string                `json:"error,omitempty"`
	// Origin is the transport-level origin of the message, filled by the
	// opener implementation. Empty origins map to desktop-shell contexts.
	Origin string `json:"-"`
}

// Window is the popup handle. Closed may fail in environments that block
// reading window state across origins; that failure is tolerated and the
// message channel remains the authoritative path.
type Window interface {
	Closed() (bool, error)
	Close()
}

// Opener opens a window at the given URL and returns its handle plus the
// channel completion messages arrive on. A nil window means the environment
// blocked the popup.
type Opener interface {
	Open(url string, width, height int) (Window, <-chan Message, error)
}

// Popup dimensions, matched to the provider consent screen.
const (
	popupWidth  = 500
	popupHeight = 650
)

const (
	defaultTimeout      = 120 * time.Second
	defaultPollInterval = time.Second
	// defaultSettleDelay gives the popup time to finish its own teardown
	// before the caller proceeds; returning immediately races it.
	defaultSettleDelay = 200 * time.Millisecond
)

// Coordinator implements auth.PopupCoordinator on top of an Opener.
type Coordinator struct {
	opener         Opener
	logger         auth.Logger
	hostOrigin     string
	allowedOrigins []string
	timeout        time.Duration
	pollInterval   time.Duration
	settleDelay    time.Duration
	sleep          func(time.Duration)
}

// Option customizes the coordinator.
type Option func(*Coordinator)

// WithLogger overrides the default logger.
func WithLogger(logger auth.Logger) Option {
	return func(c *Coordinator) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithTimeout overrides the flow timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Coordinator) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithPollInterval overrides the closed-state poll cadence.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Coordinator) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// WithSettleDelay overrides the post-success settle delay.
func WithSettleDelay(delay time.Duration) Option {
	return func(c *Coordinator) {
		if delay >= 0 {
			c.settleDelay = delay
		}
	}
}

// WithAllowedOrigins extends the origin allow-list beyond the host origin.
func WithAllowedOrigins(origins ...string) Option {
	return func(c *Coordinator) {
		c.allowedOrigins = append(c.allowedOrigins, origins...)
	}
}

// WithSleep injects the delay function (useful for tests).
func WithSleep(sleep func(time.Duration)) Option {
	return func(c *Coordinator) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// New creates a coordinator. hostOrigin is the origin of the page that owns
// the flow; messages from anywhere else are ignored, except for the
// file-based and blank origins desktop shells produce.
func New(opener Opener, hostOrigin string, opts ...Option) *Coordinator {
	c := &Coordinator{
		opener:     opener,
		logger:     nil,
		hostOrigin: hostOrigin,
		// Desktop shells deliver messages from file-based or blank origins.
		allowedOrigins: []string{"file://", "null", ""},
		timeout:        defaultTimeout,
		pollInterval:   defaultPollInterval,
		settleDelay:    defaultSettleDelay,
		sleep:          time.Sleep,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

var _ auth.PopupCoordinator = (*Coordinator)(nil)

// Open runs one OAuth flow to completion. Exactly one outcome is returned:
// the provider session on success, or one of auth.ErrPopupBlocked,
// auth.ErrOAuthTimeout, auth.ErrOAuthCancelled, auth.ErrProvider.
func (c *Coordinator) Open(ctx context.Context, authorizationURL string) (*auth.ProviderSession, error) {
	window, messages, err := c.opener.Open(authorizationURL, popupWidth, popupHeight)
	if err != nil {
		return nil, auth.ErrPopupBlocked.WithMetadata(map[string]any{"cause": err.Error()})
	}
	if window == nil {
		return nil, auth.ErrPopupBlocked
	}

	timeout := time.NewTimer(c.timeout)
	defer timeout.Stop()

	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				window.Close()
				return nil, auth.ErrOAuthCancelled.WithMetadata(map[string]any{
					"reason": "message channel closed",
				})
			}
			if !c.originAllowed(msg.Origin) {
				// Not ours; keep waiting rather than failing the flow.
				c.debug("ignoring message from origin %q", msg.Origin)
				continue
			}
			switch msg.Type {
			case MessageTypeSuccess:
				if msg.Session == nil || msg.Session.AccessToken == "" {
					// A success without a usable session cannot complete
					// the flow; keep waiting for the real message.
					c.debug("ignoring success message without a session")
					continue
				}
				window.Close()
				c.sleep(c.settleDelay)
				return msg.Session, nil
			case MessageTypeError:
				window.Close()
				return nil, auth.ErrProvider.WithMetadata(map[string]any{
					"cause": msg.Error,
				})
			default:
				c.debug("ignoring message of type %q", msg.Type)
			}

		case <-poll.C:
			closed, err := window.Closed()
			if err != nil {
				// Some environments block reading popup state across
				// origins; the message channel stays authoritative.
				continue
			}
			if closed {
				return nil, auth.ErrOAuthCancelled
			}

		case <-timeout.C:
			window.Close()
			return nil, auth.ErrOAuthTimeout

		case <-ctx.Done():
			window.Close()
			return nil, auth.ErrOAuthCancelled.WithMetadata(map[string]any{
				"cause": ctx.Err().Error(),
			})
		}
	}
}

func (c *Coordinator) originAllowed(origin string) bool {
	if origin == c.hostOrigin {
		return true
	}
	for _, allowed := range c.allowedOrigins {
		if origin == allowed {
			return true
		}
		if allowed == "file://" && strings.HasPrefix(origin, "file://") {
			return true
		}
	}
	return false
}

func (c *Coordinator) debug(format string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(format, args...)
	}
}
