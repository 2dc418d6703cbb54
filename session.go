package auth

import (
	"github.com/goliatone/go-errors"
)

// AuthState is the exclusive state tag owned by the machine.
type AuthState string

const (
	// StateLoading is the boot state; no session exists yet.
	StateLoading AuthState = "loading"
	// StateUnauthenticated means no user and no clinic context.
	StateUnauthenticated AuthState = "unauthenticated"
	// StateClinicSelected means a clinic context exists but no user signed in.
	StateClinicSelected AuthState = "clinic_selected"
	// StateAuthenticated means a user is signed in, with whatever clinic or
	// company context their role requires.
	StateAuthenticated AuthState = "authenticated"
	// StateSetupRequired means a provider identity exists without a usable
	// application account and the host must run account setup.
	StateSetupRequired AuthState = "setup_required"
)

// IsValid checks if the state is one of the defined tags.
func (s AuthState) IsValid() bool {
	switch s {
	case StateLoading, StateUnauthenticated, StateClinicSelected, StateAuthenticated, StateSetupRequired:
		return true
	default:
		return false
	}
}

// AuthSession is the value object describing who is signed in and in which
// context. It is rebuilt wholesale on every transition, never mutated.
type AuthSession struct {
	User    *User    `json:"user,omitempty"`
	Company *Company `json:"company,omitempty"`
	Clinic  *Clinic  `json:"clinic,omitempty"`
	// IsProviderAuth is true when the session's validity depends on a live
	// identity-provider session, false for clinic-local worker logins.
	IsProviderAuth bool `json:"is_provider_auth,omitempty"`
}

// Clone returns a shallow copy; User/Company/Clinic are treated as immutable.
func (s *AuthSession) Clone() *AuthSession {
	if s == nil {
		return nil
	}
	copy := *s
	return &copy
}

// Validate enforces the state/session invariants:
//   - ClinicSelected carries a clinic and no user.
//   - Authenticated carries a user; workers additionally require a clinic and
//     company owners a company.
//   - SetupRequired may carry no user, or a user without a company.
func (s *AuthSession) Validate(state AuthState) error {
	switch state {
	case StateLoading, StateUnauthenticated:
		if s != nil {
			return errors.New("session must be empty", errors.CategoryConflict).
				WithTextCode(TextCodeInconsistentSession).
				WithMetadata(map[string]any{"state": state})
		}
		return nil
	case StateClinicSelected:
		if s == nil || s.Clinic == nil || s.User != nil {
			return ErrInconsistentSession.WithMetadata(map[string]any{
				"state":  state,
				"reason": "clinic-selected requires clinic and no user",
			})
		}
		return nil
	case StateAuthenticated:
		if s == nil || s.User == nil {
			return ErrInconsistentSession.WithMetadata(map[string]any{
				"state":  state,
				"reason": "authenticated requires user",
			})
		}
		if s.User.IsCompanyOwner() {
			if s.Company == nil {
				return ErrInconsistentSession.WithMetadata(map[string]any{
					"state":  state,
					"reason": "company owner requires company",
				})
			}
			return nil
		}
		if s.Clinic == nil {
			return ErrInconsistentSession.WithMetadata(map[string]any{
				"state":  state,
				"reason": "worker requires clinic",
			})
		}
		return nil
	case StateSetupRequired:
		if s != nil && s.User != nil && s.User.CompanyID != nil {
			return ErrInconsistentSession.WithMetadata(map[string]any{
				"state":  state,
				"reason": "setup-required user must not have a company",
			})
		}
		return nil
	default:
		return ErrInconsistentSession.WithMetadata(map[string]any{"state": state})
	}
}
