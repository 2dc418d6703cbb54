package auth

import (
	"context"
	"strconv"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// linkSignOutDelay is how long the machine waits after completing a calendar
// link before revoking the provider session a clinic worker rode in on. The
// value matches observed provider teardown timing in browser shells.
const linkSignOutDelay = 100 * time.Millisecond

// defaultOAuthScopes covers profile identification plus calendar read/write,
// which the link flow needs to attach a worker's calendar account.
var defaultOAuthScopes = []string{
	"email",
	"profile",
	"https://www.googleapis.com/auth/calendar",
}

// StateMachine reconciles the hosted identity provider, clinic-local worker
// logins, and the OAuth popup flow into a single AuthState + AuthSession pair.
//
// One instance exists per process, created at the host's composition root and
// torn down with Close. Methods are not safe for concurrent sign-in calls:
// transitions apply strictly in the order their triggering operations
// complete, and serializing user-driven operations is the caller's
// responsibility.
type StateMachine struct {
	provider IdentityProvider
	backend  Backend
	popup    PopupCoordinator
	store    *SessionStore
	route    RouteContext
	logger   Logger
	sink     ActivitySink
	sleep    func(time.Duration)

	mu               sync.Mutex
	state            AuthState
	session          *AuthSession
	initialized      bool
	signingIn        int
	subscribers      map[int]Subscriber
	nextSubscriberID int
	unsubscribe      func()
}

// Option customizes state machine construction.
type Option func(*StateMachine)

// WithLogger overrides the default logger.
func WithLogger(logger Logger) Option {
	return func(m *StateMachine) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithActivitySink sets the ActivitySink used to publish auth events.
func WithActivitySink(sink ActivitySink) Option {
	return func(m *StateMachine) {
		m.sink = normalizeActivitySink(sink)
	}
}

// WithRouteContext injects the host's window/route awareness. Hosts embedding
// the machine inside a popup window or the OAuth callback route must supply
// one so initialization is skipped there.
func WithRouteContext(route RouteContext) Option {
	return func(m *StateMachine) {
		if route != nil {
			m.route = route
		}
	}
}

// WithSleep injects the delay function (useful for tests).
func WithSleep(sleep func(time.Duration)) Option {
	return func(m *StateMachine) {
		if sleep != nil {
			m.sleep = sleep
		}
	}
}

// New wires the machine to its collaborators. The kv store backs session
// persistence across restarts; see the store package for implementations.
func New(provider IdentityProvider, backend Backend, popup PopupCoordinator, kv Store, opts ...Option) *StateMachine {
	m := &StateMachine{
		provider:    provider,
		backend:     backend,
		popup:       popup,
		route:       defaultRouteContext{},
		logger:      defLogger{},
		sink:        noopActivitySink{},
		sleep:       time.Sleep,
		state:       StateLoading,
		subscribers: map[int]Subscriber{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	m.store = NewSessionStore(kv, m.logger)

	return m
}

// State returns the current state tag.
func (m *StateMachine) State() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns the current session, nil when unauthenticated or loading.
func (m *StateMachine) Session() *AuthSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

// Store exposes the typed session store, mainly for host-level tooling.
func (m *StateMachine) Store() *SessionStore {
	return m.store
}

// Subscribe registers a state change listener and returns its unsubscribe
// function. If initialization already completed, the callback fires
// immediately with the current state.
func (m *StateMachine) Subscribe(fn Subscriber) func() {
	m.mu.Lock()
	id := m.nextSubscriberID
	m.nextSubscriberID++
	m.subscribers[id] = fn
	ready := m.initialized
	state := m.state
	session := m.session.Clone()
	m.mu.Unlock()

	if ready {
		m.notifyOne(fn, state, session)
	}

	return func() {
		m.mu.Lock()
		delete(m.subscribers, id)
		m.mu.Unlock()
	}
}

// Initialize resolves the boot state: adopt a live provider session when one
// exists, otherwise restore whatever local session survives in the store.
// It is a no-op inside popup windows and on the OAuth callback route, and on
// repeat calls. Failures are recovered locally into StateUnauthenticated;
// initialization never leaves the machine in StateLoading.
func (m *StateMachine) Initialize(ctx context.Context) error {
	if m.route.InPopup() || m.route.OnOAuthCallback() {
		m.logger.Debug("initialize skipped: popup or callback context")
		return nil
	}

	m.mu.Lock()
	if m.initialized {
		m.mu.Unlock()
		return nil
	}
	m.initialized = true
	m.mu.Unlock()

	providerSession, err := m.provider.GetSession(ctx)
	if err != nil {
		m.logger.Warn("initialize: provider session lookup failed: %v", err)
		providerSession = nil
	}

	if providerSession != nil {
		if err := m.adoptProviderSession(ctx, providerSession); err != nil {
			m.logger.Error("initialize: adopting provider session failed: %v", err)
		}
	} else {
		m.restoreLocalSession(ctx)
	}

	m.mu.Lock()
	m.unsubscribe = m.provider.OnSessionChange(m.handleSessionChange)
	m.mu.Unlock()

	return nil
}

// Close detaches the machine from the provider's session change stream.
func (m *StateMachine) Close() {
	m.mu.Lock()
	unsubscribe := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

type passwordCredentials struct {
	Email    string
	Password string
}

func (c passwordCredentials) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required, validation.Length(6, 100)),
	)
}

type signUpPayload struct {
	Email    string
	Password string
	FullName string
}

func (p signUpPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(&p.FullName, validation.Required, validation.Length(1, 200)),
	)
}

// SignInWithPassword authenticates against the identity provider and adopts
// the resulting session. Rejected credentials come back as typed errors
// without a state change; unexpected failures collapse to Unauthenticated.
func (m *StateMachine) SignInWithPassword(ctx context.Context, email, password string) error {
	creds := passwordCredentials{Email: email, Password: password}
	if err := creds.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid credentials")
	}

	m.beginSignIn()
	defer m.endSignIn()

	providerSession, err := m.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		m.logger.Info("password sign-in rejected for %s: %v", email, err)
		m.emitActivity(ctx, ActivityEventLoginFailure, "", map[string]any{
			"method": "password",
			"error":  err.Error(),
		})
		return providerFailure(err)
	}

	return m.adoptProviderSession(ctx, providerSession)
}

// SignUp registers a provider account. When the provider reports the account
// already exists, it silently falls back to a password sign-in. Providers that
// defer session issuance (e.g. email confirmation) return no session; the
// machine stays in its current state until the confirmed session arrives
// through the session change stream.
func (m *StateMachine) SignUp(ctx context.Context, email, password, fullName string) error {
	payload := signUpPayload{Email: email, Password: password, FullName: fullName}
	if err := payload.Validate(); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid signup payload")
	}

	m.beginSignIn()
	defer m.endSignIn()

	providerSession, err := m.provider.SignUp(ctx, email, password, fullName)
	if err != nil {
		if IsAccountExists(err) {
			m.logger.Debug("signup found existing account for %s, falling back to sign-in", email)
			return m.SignInWithPassword(ctx, email, password)
		}
		m.emitActivity(ctx, ActivityEventLoginFailure, "", map[string]any{
			"method": "signup",
			"error":  err.Error(),
		})
		return providerFailure(err)
	}

	if providerSession == nil {
		return nil
	}

	return m.adoptProviderSession(ctx, providerSession)
}

// SignInWithOAuth runs the popup OAuth flow for a fresh provider sign-in.
func (m *StateMachine) SignInWithOAuth(ctx context.Context) error {
	m.beginSignIn()
	defer m.endSignIn()

	providerSession, err := m.runPopupFlow(ctx)
	if err != nil {
		m.emitActivity(ctx, ActivityEventLoginFailure, "", map[string]any{
			"method": "oauth",
			"error":  err.Error(),
		})
		return err
	}

	return m.adoptProviderSession(ctx, providerSession)
}

// SignInClinicUser authenticates a clinic worker against the backend's
// clinic-local login endpoint; an empty password selects the pinless variant.
// On success the bearer token is installed and the resolved user returned.
// No state transition happens here: the worker belongs to an already-selected
// clinic and the caller follows up with SetClinicSession.
func (m *StateMachine) SignInClinicUser(ctx context.Context, username, password string) (*User, error) {
	if err := validation.Validate(username, validation.Required); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "username is required")
	}

	var login *ClinicLogin
	var err error
	if password == "" {
		login, err = m.backend.LoginClinicUserPinless(ctx, username)
	} else {
		login, err = m.backend.LoginClinicUser(ctx, username, password)
	}
	if err != nil {
		m.emitActivity(ctx, ActivityEventLoginFailure, "", map[string]any{
			"method":   "clinic",
			"username": username,
			"error":    err.Error(),
		})
		return nil, clinicLoginFailure(err)
	}

	m.backend.SetBearerToken(login.Token)
	m.emitActivity(ctx, ActivityEventClinicLogin, userIDString(login.User), map[string]any{
		"username": username,
		"pinless":  password == "",
	})

	return login.User, nil
}

// SignInClinicUserWithGoogle runs the popup OAuth flow to attach a calendar
// account to an already-known clinic user. The pending-link marker is
// persisted before the popup opens so session adoption routes the result into
// the link flow, and cleared again on any failure.
func (m *StateMachine) SignInClinicUserWithGoogle(ctx context.Context, userID int64) error {
	m.beginSignIn()
	defer m.endSignIn()

	m.store.SetPendingLink(ctx, userID, true)

	providerSession, err := m.runPopupFlow(ctx)
	if err != nil {
		m.store.ClearPendingLink(ctx)
		m.emitActivity(ctx, ActivityEventLoginFailure, "", map[string]any{
			"method":  "clinic_google_link",
			"user_id": userID,
			"error":   err.Error(),
		})
		return err
	}

	return m.adoptProviderSession(ctx, providerSession)
}

// SetClinicSession installs a clinic context, optionally together with the
// user operating in it. A company owner switching clinics while already
// authenticated triggers a forced notification so the change is observable
// even though the state tag does not move.
func (m *StateMachine) SetClinicSession(ctx context.Context, clinic *Clinic, user *User) error {
	if clinic == nil {
		return ErrInconsistentSession.WithMetadata(map[string]any{
			"reason": "clinic session requires a clinic",
		})
	}

	m.store.SetClinic(ctx, clinic)

	if user == nil {
		m.setSession(&AuthSession{Clinic: clinic})
		m.transitionTo(StateClinicSelected, false)
		return nil
	}

	m.store.SetUser(ctx, user)

	session := &AuthSession{Clinic: clinic, User: user}
	force := false
	if user.IsCompanyOwner() {
		if prev := m.Session(); prev != nil {
			session.Company = prev.Company
			session.IsProviderAuth = prev.IsProviderAuth
		}
		force = true
	}

	m.setSession(session)
	m.transitionTo(StateAuthenticated, force)
	return nil
}

// LogoutUser signs the user out while keeping any clinic context, so the
// clinic's login screen can come back up for the next worker.
func (m *StateMachine) LogoutUser(ctx context.Context) {
	m.store.RemoveUser(ctx)
	m.emitActivity(ctx, ActivityEventSignOut, "", map[string]any{"scope": "user"})

	clinic := m.store.Clinic(ctx)
	if clinic != nil {
		m.setSession(&AuthSession{Clinic: clinic})
		m.transitionTo(StateClinicSelected, true)
		return
	}

	m.clearAll(ctx)
	m.transitionTo(StateUnauthenticated, false)
}

// LogoutClinic tears the whole clinic context down. The machine passes
// through StateLoading so hosts can render a transition screen, and always
// lands in StateUnauthenticated regardless of provider errors.
func (m *StateMachine) LogoutClinic(ctx context.Context) {
	wasProviderAuth := false
	if current := m.Session(); current != nil {
		wasProviderAuth = current.IsProviderAuth
	}

	m.setSession(nil)
	m.transitionTo(StateLoading, false)

	if wasProviderAuth {
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("clinic logout: provider sign-out failed: %v", err)
		}
	}

	m.clearAll(ctx)
	m.emitActivity(ctx, ActivityEventSignOut, "", map[string]any{"scope": "clinic"})
	m.transitionTo(StateUnauthenticated, true)
}

// SignOut unconditionally clears everything, local and provider-side. The
// provider sign-out is fire-and-forget: its failure changes nothing locally.
func (m *StateMachine) SignOut(ctx context.Context) {
	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Debug("sign-out: provider sign-out failed: %v", err)
	}

	m.clearAll(ctx)
	m.emitActivity(ctx, ActivityEventSignOut, "", map[string]any{"scope": "all"})
	m.transitionTo(StateUnauthenticated, false)
}

// Refresh re-adopts the current provider session, used after account setup
// completes to move SetupRequired forward into Authenticated.
func (m *StateMachine) Refresh(ctx context.Context) error {
	providerSession, err := m.provider.GetSession(ctx)
	if err != nil {
		return providerFailure(err)
	}
	if providerSession == nil {
		m.restoreLocalSession(ctx)
		return nil
	}
	return m.adoptProviderSession(ctx, providerSession)
}

// runPopupFlow requests an authorization URL and drives the popup through it.
func (m *StateMachine) runPopupFlow(ctx context.Context) (*ProviderSession, error) {
	url, err := m.provider.SignInWithOAuth(ctx, OAuthRequest{
		Provider:     "google",
		Scopes:       defaultOAuthScopes,
		SkipRedirect: true,
	})
	if err != nil {
		return nil, providerFailure(err)
	}

	return m.popup.Open(ctx, url)
}

// adoptProviderSession turns a live provider session into an application
// session: pending calendar links resolve through the link flow, unknown
// identities land in SetupRequired, everyone else gets their role context
// loaded. Any failure clears persisted state and forces Unauthenticated.
func (m *StateMachine) adoptProviderSession(ctx context.Context, providerSession *ProviderSession) error {
	if m.route.OnOAuthCallback() {
		// The callback route owns the popup lifecycle; adopting here would
		// race the opener window.
		m.logger.Debug("session adoption skipped on oauth callback route")
		return nil
	}

	if providerSession == nil || providerSession.AccessToken == "" {
		return ErrProvider.WithMetadata(map[string]any{
			"cause": "session adoption without a usable provider session",
		})
	}

	m.backend.SetBearerToken(providerSession.AccessToken)

	if userID, clinicAuth, ok := m.store.PendingLink(ctx); ok {
		return m.completePendingLink(ctx, userID, clinicAuth)
	}

	user, err := m.backend.CurrentUser(ctx)
	if err != nil {
		if IsUserNotFound(err) {
			m.setSession(&AuthSession{IsProviderAuth: true})
			m.transitionTo(StateSetupRequired, false)
			return nil
		}
		m.recoverUnauthenticated(ctx, err)
		return err
	}

	if user.IsCompanyOwner() && user.CompanyID == nil {
		// A company owner without a company is an inconsistent record; send
		// them through setup rather than guessing.
		m.setSession(&AuthSession{User: user, IsProviderAuth: true})
		m.transitionTo(StateSetupRequired, false)
		return nil
	}

	if err := m.loadUserContext(ctx, user, true); err != nil {
		m.recoverUnauthenticated(ctx, err)
		return err
	}

	m.emitActivity(ctx, ActivityEventLoginSuccess, userIDString(user), nil)
	m.transitionTo(StateAuthenticated, false)
	return nil
}

// restoreLocalSession rebuilds a session from the store alone. Missing
// combinations fall back to the narrowest state that the stored data supports.
func (m *StateMachine) restoreLocalSession(ctx context.Context) {
	clinic := m.store.Clinic(ctx)
	user := m.store.User(ctx)

	if clinic == nil {
		m.setSession(nil)
		m.transitionTo(StateUnauthenticated, false)
		return
	}

	if user == nil {
		m.setSession(&AuthSession{Clinic: clinic})
		m.transitionTo(StateClinicSelected, false)
		return
	}

	session := &AuthSession{Clinic: clinic, User: user}
	if user.IsCompanyOwner() {
		company := m.store.Company(ctx)
		if company == nil {
			// Owner context cannot be restored without its company; drop to
			// the clinic-only state instead of fabricating one.
			m.setSession(&AuthSession{Clinic: clinic})
			m.transitionTo(StateClinicSelected, false)
			return
		}
		session.Company = company
	}

	m.emitActivity(ctx, ActivityEventSessionRestored, userIDString(user), nil)
	m.setSession(session)
	m.transitionTo(StateAuthenticated, false)
}

// handleSessionChange reacts to the provider's session stream after boot.
func (m *StateMachine) handleSessionChange(event SessionEvent, providerSession *ProviderSession) {
	ctx := context.Background()

	switch event {
	case SessionEventInitial:
		// Replay of the session Initialize already handled.
	case SessionEventSignedIn:
		if providerSession == nil {
			return
		}
		if m.signInInFlight() {
			// Providers that fire their stream synchronously would hand the
			// same session to the in-flight sign-in call, which adopts it
			// itself once the provider returns.
			return
		}
		if err := m.adoptProviderSession(ctx, providerSession); err != nil {
			m.logger.Error("session change: adoption failed: %v", err)
		}
	case SessionEventSignedOut:
		m.mu.Lock()
		state := m.state
		hasClinic := m.session != nil && m.session.Clinic != nil
		m.mu.Unlock()

		// Clinic-scoped worker sessions do not depend on the provider and
		// must survive its sign-out.
		if state == StateUnauthenticated || hasClinic {
			return
		}

		m.clearAll(ctx)
		m.transitionTo(StateUnauthenticated, false)
	case SessionEventTokenRefreshed:
		if providerSession != nil {
			m.backend.SetBearerToken(providerSession.AccessToken)
		}
	}
}

// loadUserContext persists the user and resolves the company or clinic their
// role operates in, building the session accordingly.
func (m *StateMachine) loadUserContext(ctx context.Context, user *User, isProviderAuth bool) error {
	m.store.SetUser(ctx, user)

	if user.IsCompanyOwner() && user.CompanyID != nil {
		company, err := m.backend.Company(ctx, *user.CompanyID)
		if err != nil {
			return backendFailure(err)
		}
		m.store.SetCompany(ctx, company)
		m.setSession(&AuthSession{User: user, Company: company, IsProviderAuth: isProviderAuth})
		return nil
	}

	if user.ClinicID != nil {
		clinic, err := m.backend.Clinic(ctx, *user.ClinicID)
		if err != nil {
			return backendFailure(err)
		}
		m.store.SetClinic(ctx, clinic)
		m.setSession(&AuthSession{User: user, Clinic: clinic, IsProviderAuth: isProviderAuth})
		return nil
	}

	m.setSession(&AuthSession{User: user, IsProviderAuth: isProviderAuth})
	return nil
}

// completePendingLink finishes the calendar-link OAuth flow for a clinic
// user. The marker is cleared before anything else so a crash mid-flow cannot
// replay the link. Workers get the provider session revoked shortly after:
// for them it was only the vehicle for calendar consent. Company owners keep
// it, since their identity is the provider identity.
func (m *StateMachine) completePendingLink(ctx context.Context, userID int64, clinicAuth bool) error {
	m.store.ClearPendingLink(ctx)

	user, err := m.backend.User(ctx, userID)
	if err != nil {
		err = backendFailure(err)
		m.recoverUnauthenticated(ctx, err)
		return err
	}

	clinic := m.store.Clinic(ctx)
	if clinic == nil {
		err := ErrInconsistentSession.WithMetadata(map[string]any{
			"reason":  "pending link without stored clinic",
			"user_id": userID,
		})
		m.recoverUnauthenticated(ctx, err)
		return err
	}

	session := &AuthSession{User: user, Clinic: clinic}

	if user.IsCompanyOwner() {
		session.IsProviderAuth = true
		if user.CompanyID != nil {
			company, err := m.backend.Company(ctx, *user.CompanyID)
			if err != nil {
				err = backendFailure(err)
				m.recoverUnauthenticated(ctx, err)
				return err
			}
			m.store.SetCompany(ctx, company)
			session.Company = company
		}
	}

	m.store.SetUser(ctx, user)
	m.setSession(session)
	m.transitionTo(StateAuthenticated, false)

	m.emitActivity(ctx, ActivityEventCalendarLinked, userIDString(user), map[string]any{
		"clinic_auth": clinicAuth,
	})

	if !user.IsCompanyOwner() {
		m.sleep(linkSignOutDelay)
		if err := m.provider.SignOut(ctx); err != nil {
			m.logger.Warn("post-link provider sign-out failed: %v", err)
		}
	}

	return nil
}

// recoverUnauthenticated is the shared failure path: wipe everything and land
// in a safe terminal state instead of a half-built session.
func (m *StateMachine) recoverUnauthenticated(ctx context.Context, cause error) {
	m.logger.Error("recovering to unauthenticated: %v", cause)
	m.emitActivity(ctx, ActivityEventSessionRecovered, "", map[string]any{
		"error": cause.Error(),
	})
	m.clearAll(ctx)
	m.transitionTo(StateUnauthenticated, true)
}

func (m *StateMachine) clearAll(ctx context.Context) {
	m.store.Clear(ctx)
	m.backend.ClearToken()
	m.setSession(nil)
}

func (m *StateMachine) setSession(session *AuthSession) {
	m.mu.Lock()
	m.session = session
	m.mu.Unlock()
}

// beginSignIn marks a sign-in operation in flight; while one is, the provider
// change stream defers session adoption to it.
func (m *StateMachine) beginSignIn() {
	m.mu.Lock()
	m.signingIn++
	m.mu.Unlock()
}

func (m *StateMachine) endSignIn() {
	m.mu.Lock()
	m.signingIn--
	m.mu.Unlock()
}

func (m *StateMachine) signInInFlight() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signingIn > 0
}

// transitionTo applies the state tag and synchronously notifies subscribers.
// Equal-state transitions are dropped unless forced; forced notifications are
// how session content changes surface when the tag itself does not move.
func (m *StateMachine) transitionTo(next AuthState, forceNotify bool) {
	m.mu.Lock()
	if next == m.state && !forceNotify {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = next
	session := m.session.Clone()
	subscribers := make([]Subscriber, 0, len(m.subscribers))
	for _, fn := range m.subscribers {
		subscribers = append(subscribers, fn)
	}
	m.mu.Unlock()

	m.recordStateChange(prev, next)

	for _, fn := range subscribers {
		m.notifyOne(fn, next, session)
	}
}

// recordStateChange publishes the transition itself to the activity sink,
// with the from/to tags audit trails key on.
func (m *StateMachine) recordStateChange(from, to AuthState) {
	event := ActivityEvent{
		EventType:  ActivityEventStateChanged,
		FromState:  from,
		ToState:    to,
		OccurredAt: time.Now(),
	}
	if err := m.sink.Record(context.Background(), event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

// notifyOne shields the machine from subscriber panics; one bad listener must
// not break the transition for the rest.
func (m *StateMachine) notifyOne(fn Subscriber, state AuthState, session *AuthSession) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("subscriber panicked in state %s: %v", state, r)
		}
	}()
	fn(state, session)
}

func (m *StateMachine) emitActivity(ctx context.Context, eventType ActivityEventType, userID string, metadata map[string]any) {
	event := ActivityEvent{
		EventType:  eventType,
		UserID:     userID,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}
	if err := m.sink.Record(ctx, event); err != nil {
		m.logger.Warn("activity sink record error: %v", err)
	}
}

func userIDString(user *User) string {
	if user == nil {
		return ""
	}
	return strconv.FormatInt(user.ID, 10)
}

func providerFailure(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, ErrProvider.Message).
		WithTextCode(TextCodeProviderError).
		WithCode(goerrors.CodeUnauthorized)
}

func clinicLoginFailure(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryAuth, ErrInvalidCredentials.Message).
		WithTextCode(TextCodeInvalidCredentials).
		WithCode(goerrors.CodeUnauthorized)
}

func backendFailure(err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryOperation, ErrBackendUnavailable.Message).
		WithTextCode(TextCodeBackendUnavailable).
		WithCode(goerrors.CodeInternal)
}
