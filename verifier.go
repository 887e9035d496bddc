package sessiontoken

import (
	"context"
)

// RefreshVerifier is the authoritative check of refresh-credential validity
// (existence, non-revocation, non-expiry). It is implemented by the
// refresh-token store.
//
// A false result with a nil error means the credential is invalid. A non-nil
// error means the check itself could not be performed.
type RefreshVerifier interface {
	VerifyRefreshToken(ctx context.Context, subject, tokenID, refreshToken string) (bool, error)
}

// VerifierFunc adapts a function to RefreshVerifier.
type VerifierFunc func(ctx context.Context, subject, tokenID, refreshToken string) (bool, error)

// VerifyRefreshToken calls f.
func (f VerifierFunc) VerifyRefreshToken(ctx context.Context, subject, tokenID, refreshToken string) (bool, error) {
	return f(ctx, subject, tokenID, refreshToken)
}
