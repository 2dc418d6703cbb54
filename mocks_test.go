package auth_test

import (
	"context"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/stretchr/testify/mock"
)

// MockIdentityProvider mocks the hosted identity provider gateway. The
// session change handler is captured so tests can replay provider events.
type MockIdentityProvider struct {
	mock.Mock
	handler auth.SessionChangeHandler
}

func (m *MockIdentityProvider) GetSession(ctx context.Context) (*auth.ProviderSession, error) {
	args := m.Called(ctx)
	var session *auth.ProviderSession
	if v := args.Get(0); v != nil {
		session = v.(*auth.ProviderSession)
	}
	return session, args.Error(1)
}

func (m *MockIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*auth.ProviderSession, error) {
	args := m.Called(ctx, email, password)
	var session *auth.ProviderSession
	if v := args.Get(0); v != nil {
		session = v.(*auth.ProviderSession)
	}
	return session, args.Error(1)
}

func (m *MockIdentityProvider) SignUp(ctx context.Context, email, password, fullName string) (*auth.ProviderSession, error) {
	args := m.Called(ctx, email, password, fullName)
	var session *auth.ProviderSession
	if v := args.Get(0); v != nil {
		session = v.(*auth.ProviderSession)
	}
	return session, args.Error(1)
}

func (m *MockIdentityProvider) SignInWithOAuth(ctx context.Context, req auth.OAuthRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockIdentityProvider) SignOut(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockIdentityProvider) OnSessionChange(handler auth.SessionChangeHandler) func() {
	m.handler = handler
	return func() { m.handler = nil }
}

func (m *MockIdentityProvider) emit(event auth.SessionEvent, session *auth.ProviderSession) {
	if m.handler != nil {
		m.handler(event, session)
	}
}

// MockBackend mocks the application API gateway. Bearer bookkeeping is plain
// state so every flow can install tokens without expectations.
type MockBackend struct {
	mock.Mock
	bearer       string
	clearedCount int
}

func (m *MockBackend) SetBearerToken(token string) { m.bearer = token }

func (m *MockBackend) ClearToken() {
	m.bearer = ""
	m.clearedCount++
}

func (m *MockBackend) CurrentUser(ctx context.Context) (*auth.User, error) {
	args := m.Called(ctx)
	var user *auth.User
	if v := args.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, args.Error(1)
}

func (m *MockBackend) User(ctx context.Context, id int64) (*auth.User, error) {
	args := m.Called(ctx, id)
	var user *auth.User
	if v := args.Get(0); v != nil {
		user = v.(*auth.User)
	}
	return user, args.Error(1)
}

func (m *MockBackend) Clinic(ctx context.Context, id int64) (*auth.Clinic, error) {
	args := m.Called(ctx, id)
	var clinic *auth.Clinic
	if v := args.Get(0); v != nil {
		clinic = v.(*auth.Clinic)
	}
	return clinic, args.Error(1)
}

func (m *MockBackend) Company(ctx context.Context, id int64) (*auth.Company, error) {
	args := m.Called(ctx, id)
	var company *auth.Company
	if v := args.Get(0); v != nil {
		company = v.(*auth.Company)
	}
	return company, args.Error(1)
}

func (m *MockBackend) CreateCompany(ctx context.Context, company *auth.Company) (*auth.Company, error) {
	args := m.Called(ctx, company)
	var created *auth.Company
	if v := args.Get(0); v != nil {
		created = v.(*auth.Company)
	}
	return created, args.Error(1)
}

func (m *MockBackend) CreateUser(ctx context.Context, user *auth.User) (*auth.User, error) {
	args := m.Called(ctx, user)
	var created *auth.User
	if v := args.Get(0); v != nil {
		created = v.(*auth.User)
	}
	return created, args.Error(1)
}

func (m *MockBackend) LoginClinicUser(ctx context.Context, username, password string) (*auth.ClinicLogin, error) {
	args := m.Called(ctx, username, password)
	var login *auth.ClinicLogin
	if v := args.Get(0); v != nil {
		login = v.(*auth.ClinicLogin)
	}
	return login, args.Error(1)
}

func (m *MockBackend) LoginClinicUserPinless(ctx context.Context, username string) (*auth.ClinicLogin, error) {
	args := m.Called(ctx, username)
	var login *auth.ClinicLogin
	if v := args.Get(0); v != nil {
		login = v.(*auth.ClinicLogin)
	}
	return login, args.Error(1)
}

// MockPopupCoordinator mocks the OAuth popup flow.
type MockPopupCoordinator struct {
	mock.Mock
}

func (m *MockPopupCoordinator) Open(ctx context.Context, authorizationURL string) (*auth.ProviderSession, error) {
	args := m.Called(ctx, authorizationURL)
	var session *auth.ProviderSession
	if v := args.Get(0); v != nil {
		session = v.(*auth.ProviderSession)
	}
	return session, args.Error(1)
}

// popupRoute reports a popup or callback context to the machine.
type popupRoute struct {
	inPopup    bool
	onCallback bool
}

func (r popupRoute) InPopup() bool         { return r.inPopup }
func (r popupRoute) OnOAuthCallback() bool { return r.onCallback }

// stateRecorder collects every notification a subscriber sees.
type stateRecorder struct {
	states   []auth.AuthState
	sessions []*auth.AuthSession
}

func (r *stateRecorder) record(state auth.AuthState, session *auth.AuthSession) {
	r.states = append(r.states, state)
	r.sessions = append(r.sessions, session)
}
