// File: verifier.redis.imp.go

package sessiontoken

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRefreshPrefix = "refresh:"
	revokedRefreshInfix  = "revoked:"
)

// RedisVerifierOptions configures a RedisRefreshVerifier.
//
// Fields:
//   - KeyPrefix: prefix of credential keys (default "refresh:")
//   - RequireUUIDTokenIDs: reject token IDs that are not UUIDs without a round trip
type RedisVerifierOptions struct {
	KeyPrefix           string
	RequireUUIDTokenIDs bool
}

// RedisRefreshVerifier checks refresh credentials written to Redis by the
// refresh-token store. It only reads.
//
// Layout:
//
//	<prefix><subject>:<tokenID>          -> sha256 hex of the refresh credential, TTL = credential expiry
//	<prefix>revoked:<subject>:<tokenID>  -> present while the credential is revoked
type RedisRefreshVerifier struct {
	client  redis.UniversalClient
	options RedisVerifierOptions
}

var _ RefreshVerifier = (*RedisRefreshVerifier)(nil)

// NewRedisRefreshVerifier creates a verifier and checks the connection.
func NewRedisRefreshVerifier(ctx context.Context, client redis.UniversalClient, options RedisVerifierOptions) (*RedisRefreshVerifier, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if options.KeyPrefix == "" {
		options.KeyPrefix = defaultRefreshPrefix
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &RedisRefreshVerifier{
		client:  client,
		options: options,
	}, nil
}

// CredentialKey returns the key holding the hash of the (subject, tokenID) credential.
func (r *RedisRefreshVerifier) CredentialKey(subject, tokenID string) string {
	return r.options.KeyPrefix + subject + ":" + tokenID
}

// RevokedKey returns the revocation marker key for the (subject, tokenID) credential.
func (r *RedisRefreshVerifier) RevokedKey(subject, tokenID string) string {
	return r.options.KeyPrefix + revokedRefreshInfix + subject + ":" + tokenID
}

// VerifyRefreshToken reports whether refreshToken is the live, unrevoked
// credential stored for (subject, tokenID).
func (r *RedisRefreshVerifier) VerifyRefreshToken(ctx context.Context, subject, tokenID, refreshToken string) (bool, error) {
	if subject == "" || tokenID == "" || refreshToken == "" {
		return false, nil
	}
	if r.options.RequireUUIDTokenIDs {
		if _, err := uuid.Parse(tokenID); err != nil {
			return false, nil
		}
	}

	var stored *redis.StringCmd
	var revoked *redis.IntCmd
	_, err := r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		stored = pipe.Get(ctx, r.CredentialKey(subject, tokenID))
		revoked = pipe.Exists(ctx, r.RevokedKey(subject, tokenID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("redis error: %w", err)
	}

	hash, err := stored.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	}

	if n, err := revoked.Result(); err != nil {
		return false, fmt.Errorf("redis error: %w", err)
	} else if n > 0 {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(hash), []byte(HashRefreshToken(refreshToken))) == 1, nil
}
