// Package navigate turns auth state changes into navigation. The machine
// itself never routes; hosts attach a Navigator here and the subscriber maps
// each state to its landing path.
package navigate

import (
	auth "github.com/goliatone/go-clinic-auth"
)

// Navigator performs the actual route change in the host shell.
type Navigator interface {
	NavigateTo(path string)
}

// NavigatorFunc adapts a function to the Navigator interface.
type NavigatorFunc func(path string)

// NavigateTo implements Navigator.
func (f NavigatorFunc) NavigateTo(path string) {
	if f != nil {
		f(path)
	}
}

// Resolver maps a state/session pair to a path. An empty path means stay put.
type Resolver func(state auth.AuthState, session *auth.AuthSession) string

// Default landing paths per state.
const (
	PathLoading       = "/loading"
	PathLogin         = "/login"
	PathClinicLogin   = "/clinic/login"
	PathSetup         = "/setup"
	PathDashboard     = "/dashboard"
	PathControlCenter = "/control-center"
)

// DefaultResolver is the stock state-to-path mapping. Company owners land in
// the control center when no clinic is selected; everyone else lands on the
// clinic dashboard.
func DefaultResolver(state auth.AuthState, session *auth.AuthSession) string {
	switch state {
	case auth.StateLoading:
		return PathLoading
	case auth.StateUnauthenticated:
		return PathLogin
	case auth.StateClinicSelected:
		return PathClinicLogin
	case auth.StateSetupRequired:
		return PathSetup
	case auth.StateAuthenticated:
		if session != nil && session.User != nil && session.User.IsCompanyOwner() && session.Clinic == nil {
			return PathControlCenter
		}
		return PathDashboard
	}
	return ""
}

// Attach subscribes nav to the machine's state changes and returns the
// unsubscribe function. A nil resolver uses DefaultResolver.
func Attach(machine *auth.StateMachine, nav Navigator, resolve Resolver) func() {
	if machine == nil || nav == nil {
		return func() {}
	}
	if resolve == nil {
		resolve = DefaultResolver
	}

	return machine.Subscribe(func(state auth.AuthState, session *auth.AuthSession) {
		if path := resolve(state, session); path != "" {
			nav.NavigateTo(path)
		}
	})
}
