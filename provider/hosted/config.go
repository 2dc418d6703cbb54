package hosted

import (
	"fmt"
	"strings"
	"time"
)

// Config holds connection settings for the hosted identity provider.
type Config struct {
	// BaseURL is the provider's auth endpoint root
	// (e.g. "https://id.example.com/auth/v1").
	BaseURL string

	// APIKey is the public API key sent with every request.
	APIKey string

	// JWKSURL overrides the JWKS endpoint (optional).
	// Default: "{BaseURL}/.well-known/jwks.json".
	JWKSURL string

	// Issuer overrides the expected token issuer (optional).
	// Default: BaseURL.
	Issuer string

	// Audience is the audience claim(s) to validate against (optional).
	Audience []string

	// Timeout bounds each HTTP call to the provider.
	// Default: 15 seconds.
	Timeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(baseURL, apiKey string) Config {
	return Config{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Timeout: 15 * time.Second,
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.BaseURL) == "" {
		return fmt.Errorf("hosted: base URL is required")
	}
	return nil
}

func (c Config) baseURL() string {
	return strings.TrimSuffix(strings.TrimSpace(c.BaseURL), "/")
}

func (c Config) jwksURL() string {
	if c.JWKSURL != "" {
		return c.JWKSURL
	}
	return c.baseURL() + "/.well-known/jwks.json"
}

func (c Config) issuerURL() string {
	if c.Issuer != "" {
		return c.Issuer
	}
	return c.baseURL()
}

func (c Config) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return 15 * time.Second
}
