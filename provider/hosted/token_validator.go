package hosted

import (
	stderrors "errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-clinic-auth"
	goerrors "github.com/goliatone/go-errors"
)

// AccessClaims are the claims the hosted provider mints into access tokens.
type AccessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenValidator validates provider-issued JWTs against the provider's JWKS.
type TokenValidator struct {
	config Config
	jwks   *keyfunc.JWKS
}

// NewTokenValidator creates a validator that keeps the JWKS refreshed in the
// background. Call Close when done.
func NewTokenValidator(cfg Config, logger auth.Logger) (*TokenValidator, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	jwks, err := keyfunc.Get(cfg.jwksURL(), keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			if logger != nil {
				logger.Warn("jwks background refresh failed: %v", err)
			}
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "could not fetch provider JWKS")
	}

	return &TokenValidator{config: cfg, jwks: jwks}, nil
}

// Validate parses and verifies an access token, returning its claims.
func (v *TokenValidator) Validate(tokenString string) (*AccessClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithIssuer(v.config.issuerURL()),
		jwt.WithExpirationRequired(),
	}
	for _, audience := range v.config.Audience {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc, opts...)
	if err != nil {
		return nil, normalizeValidationError(err)
	}
	if !token.Valid {
		return nil, auth.ErrProvider.WithMetadata(map[string]any{
			"cause": "token failed validation",
		})
	}

	return claims, nil
}

// Close stops the background JWKS refresh.
func (v *TokenValidator) Close() {
	if v.jwks != nil {
		v.jwks.EndBackground()
	}
}

func normalizeValidationError(err error) error {
	if err == nil {
		return nil
	}

	cause := "token malformed"
	if stderrors.Is(err, jwt.ErrTokenExpired) {
		cause = "token expired"
	}

	return auth.ErrProvider.WithMetadata(map[string]any{
		"cause":  cause,
		"detail": err.Error(),
	})
}
