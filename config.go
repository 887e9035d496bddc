package sessiontoken

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Environment variables read by LoadTokenConfigFromEnv.
const (
	EnvSecret           = "PASSWORD"
	EnvAccessTokenAge   = "ACCESS_TOKEN_AGE"  // integer milliseconds
	EnvRenewalThreshold = "RENEWAL_THRESHOLD" // integer milliseconds
	EnvAlgorithm        = "TOKEN_ALGORITHM"
	EnvAllowEmptySecret = "ALLOW_EMPTY_SECRET"
)

const (
	DefaultAlgorithm        = "HS256"
	DefaultAccessTokenAge   = time.Hour
	DefaultRenewalThreshold = 5 * time.Minute
)

// TokenConfig holds the process-wide signing and renewal settings.
//
// A TokenConfig is built once at startup and treated as immutable afterwards.
// Secret is sensitive: String and LogValue never render it.
//
// Fields:
//   - Algorithm: HMAC algorithm ("HS256", "HS384" or "HS512")
//   - Secret: shared signing secret
//   - AllowEmptySecret: accept an empty Secret (weak signatures, compatibility only)
//   - AccessTokenAge: total lifetime of an access envelope
//   - RenewalThreshold: width of the window before expiry in which renewal is offered
type TokenConfig struct {
	Algorithm        string
	Secret           string
	AllowEmptySecret bool
	AccessTokenAge   time.Duration
	RenewalThreshold time.Duration
}

// NewTokenConfig creates a TokenConfig with every setting given explicitly.
//
// Example:
//
//	config := NewTokenConfig(
//	    "HS256",
//	    os.Getenv("PASSWORD"),
//	    time.Hour,       // accessTokenAge
//	    5*time.Minute,   // renewalThreshold
//	)
func NewTokenConfig(algorithm, secret string, accessTokenAge, renewalThreshold time.Duration) TokenConfig {
	return TokenConfig{
		Algorithm:        algorithm,
		Secret:           secret,
		AccessTokenAge:   accessTokenAge,
		RenewalThreshold: renewalThreshold,
	}
}

// DefaultTokenConfig returns a HS256 config with a one hour access age and a
// five minute renewal window.
func DefaultTokenConfig(secret string) TokenConfig {
	return NewTokenConfig(DefaultAlgorithm, secret, DefaultAccessTokenAge, DefaultRenewalThreshold)
}

// LoadTokenConfigFromEnv builds a TokenConfig from the process environment.
// Unset variables fall back to the defaults; the result is validated.
func LoadTokenConfigFromEnv() (TokenConfig, error) {
	config := DefaultTokenConfig(os.Getenv(EnvSecret))

	if v := os.Getenv(EnvAlgorithm); v != "" {
		config.Algorithm = v
	}

	var err error
	if config.AccessTokenAge, err = envMillis(EnvAccessTokenAge, config.AccessTokenAge); err != nil {
		return TokenConfig{}, err
	}
	if config.RenewalThreshold, err = envMillis(EnvRenewalThreshold, config.RenewalThreshold); err != nil {
		return TokenConfig{}, err
	}

	if v := os.Getenv(EnvAllowEmptySecret); v != "" {
		allow, err := strconv.ParseBool(v)
		if err != nil {
			return TokenConfig{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvAllowEmptySecret, err)
		}
		config.AllowEmptySecret = allow
	}

	if err := validateConfig(&config); err != nil {
		return TokenConfig{}, err
	}
	return config, nil
}

func envMillis(name string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(name)
	if v == "" {
		return fallback, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be integer milliseconds: %v", ErrInvalidConfig, name, err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// validateConfig checks the algorithm, the secret and the renewal window.
func validateConfig(config *TokenConfig) error {
	if _, err := signingMethodFor(config.Algorithm); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if config.Secret == "" && !config.AllowEmptySecret {
		return ErrEmptySecret
	}
	if config.AccessTokenAge <= 0 {
		return fmt.Errorf("%w: access token age must be positive", ErrInvalidConfig)
	}
	if config.RenewalThreshold <= 0 {
		return fmt.Errorf("%w: renewal threshold must be positive", ErrInvalidConfig)
	}
	if config.RenewalThreshold >= config.AccessTokenAge {
		return fmt.Errorf("%w: renewal threshold %s must be shorter than access token age %s",
			ErrInvalidConfig, config.RenewalThreshold, config.AccessTokenAge)
	}
	return nil
}

// String renders the config without the secret.
func (c TokenConfig) String() string {
	return fmt.Sprintf("TokenConfig{Algorithm:%s Secret:[redacted] AccessTokenAge:%s RenewalThreshold:%s}",
		c.Algorithm, c.AccessTokenAge, c.RenewalThreshold)
}

// LogValue implements slog.LogValuer.
func (c TokenConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("algorithm", c.Algorithm),
		slog.Bool("secret_set", c.Secret != ""),
		slog.Duration("access_token_age", c.AccessTokenAge),
		slog.Duration("renewal_threshold", c.RenewalThreshold),
	)
}
