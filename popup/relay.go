package popup

import (
	"embed"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/django/v3"
	auth "github.com/goliatone/go-clinic-auth"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed views/*.html
var viewsFS embed.FS

// RelayOpener implements Opener for desktop shells that cannot host a browser
// popup directly. It starts a short-lived local HTTP relay, opens the system
// browser at the authorization URL, and serves the OAuth callback page. The
// page extracts the provider tokens client-side and posts them back to the
// relay, which forwards them as the flow's completion message.
type RelayOpener struct {
	addr   string
	launch func(url string) error
	logger auth.Logger
}

// RelayOption customizes the relay opener.
type RelayOption func(*RelayOpener)

// WithRelayLogger overrides the default logger.
func WithRelayLogger(logger auth.Logger) RelayOption {
	return func(r *RelayOpener) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBrowserLauncher injects the function that opens the system browser.
func WithBrowserLauncher(launch func(url string) error) RelayOption {
	return func(r *RelayOpener) {
		if launch != nil {
			r.launch = launch
		}
	}
}

// NewRelayOpener creates a relay opener bound to addr. Use ":0" to pick an
// ephemeral port; the callback redirect URI must then be resolved through
// the relay's Origin after Open.
func NewRelayOpener(addr string, opts ...RelayOption) *RelayOpener {
	r := &RelayOpener{
		addr:   addr,
		launch: func(string) error { return nil },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

var _ Opener = (*RelayOpener)(nil)

// Open starts the relay, launches the browser, and returns the relay window.
// Width and height are ignored; the system browser controls its own geometry.
func (r *RelayOpener) Open(authorizationURL string, _, _ int) (Window, <-chan Message, error) {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "relay listener failed")
	}

	origin := "http://" + ln.Addr().String()
	messages := make(chan Message, 1)

	engine := django.NewFileSystem(http.FS(viewsFS), ".html")

	app := fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
	})

	window := &relayWindow{app: app, origin: origin}

	app.Get("/callback", func(c *fiber.Ctx) error {
		return c.Render("views/callback", fiber.Map{
			"complete_url": origin + "/complete",
		})
	})

	app.Post("/complete", func(c *fiber.Ctx) error {
		var msg Message
		if err := json.Unmarshal(c.Body(), &msg); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "malformed completion payload")
		}
		// Relay messages are loopback-local and carry the blank desktop-shell
		// origin the coordinator accepts by default.
		msg.Origin = ""
		window.deliver(messages, msg)
		return c.SendStatus(fiber.StatusNoContent)
	})

	go func() {
		if err := app.Listener(ln); err != nil && r.logger != nil {
			r.logger.Error("relay server stopped: %v", err)
		}
	}()

	if err := r.launch(authorizationURL); err != nil {
		window.Close()
		return nil, nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not open system browser")
	}

	return window, messages, nil
}

// relayWindow adapts the relay server lifecycle to the Window contract. The
// system browser tab is outside our control, so Closed cannot be answered;
// the coordinator tolerates that and relies on its timeout instead.
type relayWindow struct {
	app    *fiber.App
	origin string

	mu     sync.Mutex
	closed bool
}

// Origin is the relay's own origin, usable as the coordinator host origin and
// as the base for the provider redirect URI.
func (w *relayWindow) Origin() string { return w.origin }

func (w *relayWindow) Closed() (bool, error) {
	return false, goerrors.New(
		"system browser state is not observable",
		goerrors.CategoryOperation,
	)
}

func (w *relayWindow) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	_ = w.app.ShutdownWithTimeout(2 * time.Second)
}

func (w *relayWindow) deliver(messages chan<- Message, msg Message) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case messages <- msg:
	default:
	}
}
