package sessiontoken

import (
	"context"
	"crypto/hmac"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/chainguard-dev/clog"
	"github.com/golang-jwt/jwt/v5"
)

// SigningPayload is the canonical record covered by an envelope signature.
//
// Field order is fixed by the struct definition, so identical payloads always
// serialize to identical bytes:
//
//	{"username":"alice","role":"user","timestamp":1700000000000}
type SigningPayload struct {
	Subject   string `json:"username"`
	Role      string `json:"role"`
	Timestamp int64  `json:"timestamp"` // milliseconds since epoch
}

// Canonical returns the serialized bytes that are fed to the MAC.
//
// HTML characters are not escaped. Subject and Role must be valid UTF-8 and
// must not contain U+2028 or U+2029; otherwise ErrInvalidPayload is returned,
// since those strings have no single JSON rendering.
func (p SigningPayload) Canonical() ([]byte, error) {
	if err := checkCanonicalString("username", p.Subject); err != nil {
		return nil, err
	}
	if err := checkCanonicalString("role", p.Role); err != nil {
		return nil, err
	}
	return marshalJSON(p)
}

func checkCanonicalString(field, v string) error {
	if !utf8.ValidString(v) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrInvalidPayload, field)
	}
	if strings.ContainsAny(v, "\u2028\u2029") {
		return fmt.Errorf("%w: %s contains a line or paragraph separator", ErrInvalidPayload, field)
	}
	return nil
}

// Signer computes and checks envelope signatures.
type Signer interface {
	// Sign returns the lowercase hex MAC of the canonical payload.
	Sign(ctx context.Context, payload SigningPayload) (string, error)

	// Verify returns ErrSignatureMismatch unless signature matches payload.
	Verify(ctx context.Context, payload SigningPayload, signature string) error
}

// HMACSigner implements Signer with a shared secret.
type HMACSigner struct {
	signingMethod *jwt.SigningMethodHMAC
	secret        []byte
}

var _ Signer = (*HMACSigner)(nil)

// NewHMACSigner creates a signer from a validated config.
//
// The secret is copied; later changes to config do not affect the signer.
// An empty secret is rejected with ErrEmptySecret unless config.AllowEmptySecret
// is set, in which case a warning is logged.
func NewHMACSigner(ctx context.Context, config TokenConfig) (*HMACSigner, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	method, err := signingMethodFor(config.Algorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if config.Secret == "" {
		clog.FromContext(ctx).Warnf("sessiontoken: signing with an empty secret, signatures are forgeable")
	}

	return &HMACSigner{
		signingMethod: method,
		secret:        []byte(config.Secret),
	}, nil
}

// Algorithm returns the JWA name of the configured MAC.
func (s *HMACSigner) Algorithm() string {
	return s.signingMethod.Alg()
}

// Sign serializes payload canonically and returns its hex-encoded MAC.
func (s *HMACSigner) Sign(ctx context.Context, payload SigningPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	data, err := payload.Canonical()
	if err != nil {
		if errors.Is(err, ErrInvalidPayload) {
			return "", err
		}
		return "", fmt.Errorf("%w: failed to serialize payload: %v", ErrSigningFailure, err)
	}

	return signWith(s.signingMethod, data, s.secret)
}

// Verify recomputes the MAC of payload and compares it in constant time.
func (s *HMACSigner) Verify(ctx context.Context, payload SigningPayload, signature string) error {
	expected, err := s.Sign(ctx, payload)
	if err != nil {
		return err
	}

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// SignBytes computes the HMAC-SHA256 of already-serialized data and returns it
// as 64 lowercase hex characters. An empty secret still yields a valid MAC.
func SignBytes(data, secret []byte) (string, error) {
	return signWith(jwt.SigningMethodHS256, data, secret)
}

func signWith(method *jwt.SigningMethodHMAC, data, secret []byte) (string, error) {
	mac, err := method.Sign(string(data), secret)
	if err != nil {
		if errors.Is(err, jwt.ErrHashUnavailable) {
			return "", fmt.Errorf("%w: %s hash unavailable", ErrSigningFailure, method.Alg())
		}
		return "", fmt.Errorf("%w: %v", ErrSigningFailure, err)
	}

	return hex.EncodeToString(mac), nil
}

// signingMethodFor maps an algorithm name onto its HMAC signing method.
func signingMethodFor(algorithm string) (*jwt.SigningMethodHMAC, error) {
	switch algorithm {
	case "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s, supports HS256, HS384 and HS512", algorithm)
	}
}
