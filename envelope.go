package sessiontoken

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// Envelope is the signed access artifact handed to the transport layer.
//
// Signature covers exactly {username, role, timestamp}. TokenID, RefreshToken
// and RefreshExpires are carried through unchanged and are not signed.
type Envelope struct {
	Subject        string `json:"username"`
	Role           string `json:"role"`
	Timestamp      int64  `json:"timestamp"` // issuance, ms since epoch
	TokenID        string `json:"tokenId"`
	RefreshToken   string `json:"refreshToken"`
	RefreshExpires int64  `json:"refreshExpires"` // refresh credential expiry, ms since epoch
	Signature      string `json:"signature"`
}

// SigningPayload returns the part of the envelope covered by the signature.
func (e Envelope) SigningPayload() SigningPayload {
	return SigningPayload{
		Subject:   e.Subject,
		Role:      e.Role,
		Timestamp: e.Timestamp,
	}
}

// IssuedAt returns the envelope timestamp as a time.Time.
func (e Envelope) IssuedAt() time.Time {
	return fromMillis(e.Timestamp)
}

// RefreshExpiresAt returns the refresh credential expiry as a time.Time.
func (e Envelope) RefreshExpiresAt() time.Time {
	return fromMillis(e.RefreshExpires)
}

// Encode returns the JSON form of the envelope percent-encoded the way
// encodeURIComponent does it, so browsers and cookie jars read it back with
// decodeURIComponent.
func (e Envelope) Encode() (string, error) {
	data, err := marshalJSON(e)
	if err != nil {
		return "", fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return encodeURIComponent(string(data)), nil
}

// DecodeEnvelope parses a token produced by Envelope.Encode. The signature is
// not checked; use VerifyEnvelope for that.
func DecodeEnvelope(token string) (Envelope, error) {
	if token == "" {
		return Envelope{}, fmt.Errorf("%w: token cannot be empty", ErrInvalidEnvelope)
	}

	raw, err := url.PathUnescape(token)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	if e.Subject == "" || e.Timestamp == 0 || e.Signature == "" {
		return Envelope{}, fmt.Errorf("%w: missing username, timestamp or signature", ErrInvalidEnvelope)
	}
	return e, nil
}

// VerifyEnvelope checks that the envelope signature matches its payload.
func VerifyEnvelope(ctx context.Context, signer Signer, e Envelope) error {
	return signer.Verify(ctx, e.SigningPayload(), e.Signature)
}
