package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	auth "github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-clinic-auth/store"
	goerrors "github.com/goliatone/go-errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newMachine(provider *MockIdentityProvider, backend *MockBackend, popup *MockPopupCoordinator, opts ...auth.Option) *auth.StateMachine {
	base := []auth.Option{auth.WithSleep(func(time.Duration) {})}
	return auth.New(provider, backend, popup, store.NewMemory(), append(base, opts...)...)
}

func workerUser() *auth.User {
	clinicID := int64(7)
	return &auth.User{ID: 21, Role: auth.RoleWorker, ClinicID: &clinicID, Username: "dvm.rivera"}
}

func ownerUser() *auth.User {
	companyID := int64(4)
	return &auth.User{ID: 11, Role: auth.RoleCompanyOwner, CompanyID: &companyID, Email: "owner@example.com"}
}

func testClinic() *auth.Clinic {
	return &auth.Clinic{ID: 7, CompanyID: 4, Name: "North Paws"}
}

func testCompany() *auth.Company {
	return &auth.Company{ID: 4, Name: "Paws Group", OwnerID: 11}
}

func TestInitializeFreshBoot(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))

	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	assert.Nil(t, machine.Session())

	// Subscribing after initialization replays the current state.
	recorder := &stateRecorder{}
	machine.Subscribe(recorder.record)
	require.Len(t, recorder.states, 1)
	assert.Equal(t, auth.StateUnauthenticated, recorder.states[0])

	provider.AssertExpectations(t)
}

func TestInitializeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))
	require.NoError(t, machine.Initialize(ctx))

	provider.AssertNumberOfCalls(t, "GetSession", 1)
}

func TestInitializeSkippedInPopupWindows(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	machine := newMachine(provider, backend, popup,
		auth.WithRouteContext(popupRoute{inPopup: true}),
	)
	require.NoError(t, machine.Initialize(ctx))

	assert.Equal(t, auth.StateLoading, machine.State())
	provider.AssertNotCalled(t, "GetSession", mock.Anything)
}

func TestInitializeRestoresClinicOnlySession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())

	require.NoError(t, machine.Initialize(ctx))

	assert.Equal(t, auth.StateClinicSelected, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	require.NotNil(t, session.Clinic)
	assert.Equal(t, int64(7), session.Clinic.ID)
	assert.Nil(t, session.User)
}

func TestInitializeRestoresWorkerSession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())
	machine.Store().SetUser(ctx, workerUser())

	require.NoError(t, machine.Initialize(ctx))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	require.NotNil(t, session.User)
	assert.Equal(t, int64(21), session.User.ID)
	assert.False(t, session.IsProviderAuth)
	require.NoError(t, session.Validate(auth.StateAuthenticated))
}

func TestInitializeOwnerWithoutStoredCompanyFallsBack(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())
	machine.Store().SetUser(ctx, ownerUser())

	require.NoError(t, machine.Initialize(ctx))

	// An owner session cannot be rebuilt without its company; the machine
	// drops to the clinic-only state instead of fabricating one.
	assert.Equal(t, auth.StateClinicSelected, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	assert.Nil(t, session.User)
}

func TestInitializeAdoptsLiveProviderSession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	assert.Equal(t, "at-1", backend.bearer)

	session := machine.Session()
	require.NotNil(t, session)
	assert.True(t, session.IsProviderAuth)
	require.NotNil(t, session.Company)
	assert.Equal(t, "Paws Group", session.Company.Name)
	require.NoError(t, session.Validate(auth.StateAuthenticated))
}

func TestSignInWithPasswordAuthenticatesWorker(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithPassword", mock.Anything, "vet@example.com", "hunter22").
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(workerUser(), nil).Once()
	backend.On("Clinic", mock.Anything, int64(7)).Return(testClinic(), nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.SignInWithPassword(ctx, "vet@example.com", "hunter22"))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	require.NotNil(t, session.Clinic)
	assert.Equal(t, "North Paws", session.Clinic.Name)
}

func TestSignInWithPasswordValidatesInput(t *testing.T) {
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	machine := newMachine(provider, backend, popup)

	err := machine.SignInWithPassword(context.Background(), "not-an-email", "hunter22")
	require.Error(t, err)
	provider.AssertNotCalled(t, "SignInWithPassword", mock.Anything, mock.Anything, mock.Anything)
}

func TestSignInWithPasswordRejectedKeepsState(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithPassword", mock.Anything, "vet@example.com", "badpass").
		Return(nil, auth.ErrInvalidCredentials).Once()

	machine := newMachine(provider, backend, popup)

	err := machine.SignInWithPassword(ctx, "vet@example.com", "badpass")
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeInvalidCredentials, richErr.TextCode)
	assert.Equal(t, auth.StateLoading, machine.State())
}

func TestSignUpFallsBackToSignInWhenAccountExists(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignUp", mock.Anything, "owner@example.com", "hunter22", "Dana Vet").
		Return(nil, auth.ErrAccountExists).Once()
	provider.On("SignInWithPassword", mock.Anything, "owner@example.com", "hunter22").
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.SignUp(ctx, "owner@example.com", "hunter22", "Dana Vet"))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	provider.AssertExpectations(t)
}

func TestSignUpPendingConfirmationStaysPut(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignUp", mock.Anything, "owner@example.com", "hunter22", "Dana Vet").
		Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.SignUp(ctx, "owner@example.com", "hunter22", "Dana Vet"))

	assert.Equal(t, auth.StateLoading, machine.State())
	backend.AssertNotCalled(t, "CurrentUser", mock.Anything)
}

func TestSignInWithOAuthRoutesNewIdentityToSetup(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(nil, auth.ErrUserNotFound).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.SignInWithOAuth(ctx))

	assert.Equal(t, auth.StateSetupRequired, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	assert.True(t, session.IsProviderAuth)
	assert.Nil(t, session.User)
	require.NoError(t, session.Validate(auth.StateSetupRequired))
}

func TestSignInWithOAuthPopupTimeout(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(nil, auth.ErrOAuthTimeout).Once()

	machine := newMachine(provider, backend, popup)

	err := machine.SignInWithOAuth(ctx)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeOAuthTimeout, richErr.TextCode)
	assert.Equal(t, auth.StateLoading, machine.State())
	backend.AssertNotCalled(t, "CurrentUser", mock.Anything)
}

func TestSignInWithOAuthEmptyPopupResultFailsCleanly(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)

	// A coordinator handing back neither session nor error must surface a
	// typed failure, never a dereference.
	err := machine.SignInWithOAuth(ctx)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeProviderError, richErr.TextCode)
	assert.Equal(t, auth.StateLoading, machine.State())
	assert.Empty(t, backend.bearer)
	backend.AssertNotCalled(t, "CurrentUser", mock.Anything)
}

func TestTransitionsEmitStateChangeActivity(t *testing.T) {
	ctx := context.Background()

	var events []auth.ActivityEvent
	sink := auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		events = append(events, event)
		return nil
	})

	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator),
		auth.WithActivitySink(sink),
	)

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), nil))

	var changes []auth.ActivityEvent
	for _, event := range events {
		if event.EventType == auth.ActivityEventStateChanged {
			changes = append(changes, event)
		}
	}
	require.Len(t, changes, 1)
	assert.Equal(t, auth.StateLoading, changes[0].FromState)
	assert.Equal(t, auth.StateClinicSelected, changes[0].ToState)
	assert.False(t, changes[0].OccurredAt.IsZero())
}

func TestSignInClinicUser(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	backend.On("LoginClinicUser", mock.Anything, "dvm.rivera", "1234").
		Return(&auth.ClinicLogin{User: workerUser(), Token: "clinic-jwt"}, nil).Once()

	machine := newMachine(provider, backend, popup)

	user, err := machine.SignInClinicUser(ctx, "dvm.rivera", "1234")
	require.NoError(t, err)
	require.NotNil(t, user)

	assert.Equal(t, int64(21), user.ID)
	assert.Equal(t, "clinic-jwt", backend.bearer)
	// No transition: the caller follows up with SetClinicSession.
	assert.Equal(t, auth.StateLoading, machine.State())
}

func TestSignInClinicUserPinless(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	backend.On("LoginClinicUserPinless", mock.Anything, "dvm.rivera").
		Return(&auth.ClinicLogin{User: workerUser(), Token: "clinic-jwt"}, nil).Once()

	machine := newMachine(provider, backend, popup)

	_, err := machine.SignInClinicUser(ctx, "dvm.rivera", "")
	require.NoError(t, err)
	backend.AssertNotCalled(t, "LoginClinicUser", mock.Anything, mock.Anything, mock.Anything)
}

func TestSetClinicSessionClinicOnly(t *testing.T) {
	ctx := context.Background()
	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator))

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), nil))

	assert.Equal(t, auth.StateClinicSelected, machine.State())
	session := machine.Session()
	require.NoError(t, session.Validate(auth.StateClinicSelected))
}

func TestSetClinicSessionRequiresClinic(t *testing.T) {
	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator))

	err := machine.SetClinicSession(context.Background(), nil, workerUser())
	require.Error(t, err)
}

func TestSetClinicSessionOwnerSwitchForcesNotification(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))
	require.Equal(t, auth.StateAuthenticated, machine.State())

	recorder := &stateRecorder{}
	machine.Subscribe(recorder.record)
	notifications := len(recorder.states)

	// The state tag stays Authenticated, so only a forced notification makes
	// the clinic switch observable.
	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), ownerUser()))

	require.Greater(t, len(recorder.states), notifications)
	last := recorder.sessions[len(recorder.sessions)-1]
	require.NotNil(t, last)
	require.NotNil(t, last.Clinic)
	assert.Equal(t, int64(7), last.Clinic.ID)
	require.NotNil(t, last.Company)
	assert.Equal(t, int64(4), last.Company.ID)
	assert.True(t, last.IsProviderAuth)
}

func TestLogoutUserKeepsClinic(t *testing.T) {
	ctx := context.Background()
	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator))

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), workerUser()))
	require.Equal(t, auth.StateAuthenticated, machine.State())

	machine.LogoutUser(ctx)

	assert.Equal(t, auth.StateClinicSelected, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	assert.Nil(t, session.User)
	require.NotNil(t, session.Clinic)

	// The clinic survives in the store too, for the next boot.
	assert.NotNil(t, machine.Store().Clinic(ctx))
	assert.Nil(t, machine.Store().User(ctx))
}

func TestLogoutUserWithoutClinic(t *testing.T) {
	ctx := context.Background()
	backend := new(MockBackend)
	machine := newMachine(new(MockIdentityProvider), backend, new(MockPopupCoordinator))

	machine.LogoutUser(ctx)

	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	assert.Nil(t, machine.Session())
}

func TestLogoutClinicSignsOutProviderSessions(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()
	provider.On("SignOut", mock.Anything).Return(errors.New("network down")).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))

	recorder := &stateRecorder{}
	machine.Subscribe(recorder.record)

	machine.LogoutClinic(ctx)

	// Provider failure cannot strand the logout.
	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	assert.Nil(t, machine.Session())
	assert.Empty(t, backend.bearer)
	assert.Nil(t, machine.Store().Clinic(ctx))

	// The machine passes through Loading on the way down.
	assert.Contains(t, recorder.states, auth.StateLoading)
	assert.Equal(t, auth.StateUnauthenticated, recorder.states[len(recorder.states)-1])
	provider.AssertExpectations(t)
}

func TestLogoutClinicSkipsProviderForLocalSessions(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	machine := newMachine(provider, new(MockBackend), new(MockPopupCoordinator))

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), workerUser()))

	machine.LogoutClinic(ctx)

	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	provider.AssertNotCalled(t, "SignOut", mock.Anything)
}

func TestSignOutClearsEverythingDespiteProviderFailure(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	machine := newMachine(provider, backend, new(MockPopupCoordinator))

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), workerUser()))
	provider.On("SignOut", mock.Anything).Return(errors.New("provider down")).Once()

	machine.SignOut(ctx)

	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	assert.Nil(t, machine.Session())
	assert.Nil(t, machine.Store().User(ctx))
	assert.Nil(t, machine.Store().Clinic(ctx))
}

func TestClinicUserGoogleLinkWorker(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(&auth.ProviderSession{AccessToken: "at-link"}, nil).Once()
	backend.On("User", mock.Anything, int64(21)).Return(workerUser(), nil).Once()
	provider.On("SignOut", mock.Anything).Return(nil).Once()

	var slept []time.Duration
	machine := auth.New(provider, backend, popup, store.NewMemory(),
		auth.WithSleep(func(d time.Duration) { slept = append(slept, d) }),
	)
	machine.Store().SetClinic(ctx, testClinic())

	require.NoError(t, machine.SignInClinicUserWithGoogle(ctx, 21))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	require.NotNil(t, session.User)
	assert.Equal(t, int64(21), session.User.ID)
	// Workers keep their clinic-local identity; the provider session was only
	// the calendar consent vehicle and gets revoked after a short delay.
	assert.False(t, session.IsProviderAuth)
	require.Len(t, slept, 1)
	assert.Equal(t, 100*time.Millisecond, slept[0])
	provider.AssertCalled(t, "SignOut", mock.Anything)

	// The marker is consumed; a replayed adoption must not re-link.
	_, _, pending := machine.Store().PendingLink(ctx)
	assert.False(t, pending)
}

func TestClinicUserGoogleLinkOwnerKeepsProviderSession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(&auth.ProviderSession{AccessToken: "at-link"}, nil).Once()
	backend.On("User", mock.Anything, int64(11)).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())

	require.NoError(t, machine.SignInClinicUserWithGoogle(ctx, 11))

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	session := machine.Session()
	require.NotNil(t, session)
	assert.True(t, session.IsProviderAuth)
	require.NotNil(t, session.Company)
	provider.AssertNotCalled(t, "SignOut", mock.Anything)
}

func TestClinicUserGoogleLinkClearsMarkerOnPopupFailure(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(nil, auth.ErrOAuthCancelled).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())

	err := machine.SignInClinicUserWithGoogle(ctx, 21)
	require.Error(t, err)

	_, _, pending := machine.Store().PendingLink(ctx)
	assert.False(t, pending)
}

func TestPendingLinkWithoutClinicRecovers(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithOAuth", mock.Anything, mock.Anything).
		Return("https://provider/authorize", nil).Once()
	popup.On("Open", mock.Anything, "https://provider/authorize").
		Return(&auth.ProviderSession{AccessToken: "at-link"}, nil).Once()
	backend.On("User", mock.Anything, int64(21)).Return(workerUser(), nil).Once()

	machine := newMachine(provider, backend, popup)
	// No clinic stored: the link flow has nothing to link into.

	err := machine.SignInClinicUserWithGoogle(ctx, 21)
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, auth.TextCodeInconsistentSession, richErr.TextCode)
	assert.Equal(t, auth.StateUnauthenticated, machine.State())
}

func TestProviderSignOutEventKeepsClinicScopedSession(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).Return(nil, nil).Once()

	machine := newMachine(provider, backend, popup)
	machine.Store().SetClinic(ctx, testClinic())
	machine.Store().SetUser(ctx, workerUser())
	require.NoError(t, machine.Initialize(ctx))
	require.Equal(t, auth.StateAuthenticated, machine.State())

	// A provider-level sign-out must not tear down clinic-local sessions.
	provider.emit(auth.SessionEventSignedOut, nil)

	assert.Equal(t, auth.StateAuthenticated, machine.State())
	assert.NotNil(t, machine.Session())
}

func TestTokenRefreshUpdatesBearer(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("GetSession", mock.Anything).
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).Return(ownerUser(), nil).Once()
	backend.On("Company", mock.Anything, int64(4)).Return(testCompany(), nil).Once()

	machine := newMachine(provider, backend, popup)
	require.NoError(t, machine.Initialize(ctx))
	require.Equal(t, "at-1", backend.bearer)

	provider.emit(auth.SessionEventTokenRefreshed, &auth.ProviderSession{AccessToken: "at-2"})

	assert.Equal(t, "at-2", backend.bearer)
	assert.Equal(t, auth.StateAuthenticated, machine.State())
}

func TestBackendFailureDuringAdoptionRecovers(t *testing.T) {
	ctx := context.Background()
	provider := new(MockIdentityProvider)
	backend := new(MockBackend)
	popup := new(MockPopupCoordinator)

	provider.On("SignInWithPassword", mock.Anything, "vet@example.com", "hunter22").
		Return(&auth.ProviderSession{AccessToken: "at-1"}, nil).Once()
	backend.On("CurrentUser", mock.Anything).
		Return(nil, auth.ErrBackendUnavailable).Once()

	machine := newMachine(provider, backend, popup)

	err := machine.SignInWithPassword(ctx, "vet@example.com", "hunter22")
	require.Error(t, err)

	assert.Equal(t, auth.StateUnauthenticated, machine.State())
	assert.Nil(t, machine.Session())
	assert.Empty(t, backend.bearer)
}

func TestSubscriberPanicDoesNotBreakTransitions(t *testing.T) {
	ctx := context.Background()
	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator))

	machine.Subscribe(func(auth.AuthState, *auth.AuthSession) {
		panic("bad subscriber")
	})
	recorder := &stateRecorder{}
	machine.Subscribe(recorder.record)

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), nil))

	assert.Equal(t, auth.StateClinicSelected, machine.State())
	assert.NotEmpty(t, recorder.states)
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	ctx := context.Background()
	machine := newMachine(new(MockIdentityProvider), new(MockBackend), new(MockPopupCoordinator))

	recorder := &stateRecorder{}
	unsubscribe := machine.Subscribe(recorder.record)
	unsubscribe()

	require.NoError(t, machine.SetClinicSession(ctx, testClinic(), nil))
	assert.Empty(t, recorder.states)
}
