package sessiontoken

import "errors"

var (
	// ErrInvalidConfig is returned when a TokenConfig fails validation.
	ErrInvalidConfig = errors.New("invalid token config")
	// ErrEmptySecret is returned when the signing secret is empty and AllowEmptySecret is not set.
	ErrEmptySecret = errors.New("signing secret cannot be empty")
	// ErrSigningFailure wraps failures of the underlying MAC primitive.
	ErrSigningFailure = errors.New("signing failure")
	// ErrSignatureMismatch is returned when an envelope signature does not match its payload.
	ErrSignatureMismatch = errors.New("signature mismatch")
	// ErrVerifierUnavailable wraps errors reported by the refresh-credential verifier.
	ErrVerifierUnavailable = errors.New("refresh verifier unavailable")
	// ErrInvalidPayload is returned when a signing payload has no canonical serialization.
	ErrInvalidPayload = errors.New("invalid signing payload")
	// ErrInvalidEnvelope is returned when a wire token cannot be decoded.
	ErrInvalidEnvelope = errors.New("invalid envelope")
)
