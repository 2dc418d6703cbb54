package auth

import (
	"github.com/goliatone/go-errors"
)

const (
	TextCodePopupBlocked        = "oauth_popup_blocked"
	TextCodeOAuthTimeout        = "oauth_timeout"
	TextCodeOAuthCancelled      = "oauth_cancelled"
	TextCodeProviderError       = "identity_provider_error"
	TextCodeAccountExists       = "identity_account_exists"
	TextCodeInvalidCredentials  = "invalid_credentials"
	TextCodeBackendUnavailable  = "backend_unavailable"
	TextCodeUserNotFound        = "app_user_not_found"
	TextCodeInconsistentSession = "inconsistent_session"
)

// ErrPopupBlocked is returned when the browser refused to open the OAuth popup.
var ErrPopupBlocked = errors.New("oauth popup blocked", errors.CategoryOperation).
	WithTextCode(TextCodePopupBlocked).
	WithCode(errors.CodeConflict)

// ErrOAuthTimeout is returned when no completion message arrived in time.
var ErrOAuthTimeout = errors.New("oauth flow timed out", errors.CategoryOperation).
	WithTextCode(TextCodeOAuthTimeout).
	WithCode(errors.CodeConflict)

// ErrOAuthCancelled is returned when the user closed the popup before completing.
var ErrOAuthCancelled = errors.New("oauth flow cancelled", errors.CategoryOperation).
	WithTextCode(TextCodeOAuthCancelled).
	WithCode(errors.CodeConflict)

// ErrProvider wraps failures reported by the hosted identity provider.
var ErrProvider = errors.New("identity provider error", errors.CategoryAuth).
	WithTextCode(TextCodeProviderError).
	WithCode(errors.CodeUnauthorized)

// ErrAccountExists is returned by sign-up when the provider account already exists.
var ErrAccountExists = errors.New("identity account already exists", errors.CategoryConflict).
	WithTextCode(TextCodeAccountExists).
	WithCode(errors.CodeConflict)

// ErrInvalidCredentials is returned for rejected password or clinic logins.
var ErrInvalidCredentials = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrBackendUnavailable wraps backend gateway failures.
var ErrBackendUnavailable = errors.New("backend unavailable", errors.CategoryOperation).
	WithTextCode(TextCodeBackendUnavailable).
	WithCode(errors.CodeInternal)

// ErrUserNotFound is returned when the provider identity has no application user.
var ErrUserNotFound = errors.New("application user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrInconsistentSession is returned when persisted state cannot form a valid
// session, e.g. a pending calendar link with no stored clinic to link into.
var ErrInconsistentSession = errors.New("inconsistent session state", errors.CategoryConflict).
	WithTextCode(TextCodeInconsistentSession).
	WithCode(errors.CodeConflict)

// IsAccountExists checks whether an error is the provider's duplicate-account
// rejection, used by SignUp to fall back to a password sign-in.
func IsAccountExists(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeAccountExists
	}
	return false
}

// IsUserNotFound checks for the missing-application-user case that routes a
// fresh provider identity into account setup.
func IsUserNotFound(err error) bool {
	if err == nil {
		return false
	}
	var richErr *errors.Error
	if errors.As(err, &richErr) {
		return richErr.TextCode == TextCodeUserNotFound
	}
	return errors.IsNotFound(err)
}
