// refresher_test.go

package sessiontoken

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	expiry := testNow.Add(7 * 24 * time.Hour).UnixMilli()
	req := RefreshRequest{
		Subject:        "alice",
		Role:           "user",
		TokenID:        "t1",
		RefreshToken:   "r1",
		RefreshExpires: expiry,
	}

	t.Run("Valid credential renews", func(t *testing.T) {
		clock := newFakeClock(testNow)
		signer := testSigner(t)
		refresher, err := NewRefresher(signer, stubVerifier("alice", "t1", "r1"), WithClock(clock.Now))
		require.NoError(t, err)

		result, err := refresher.Refresh(ctx, req)
		require.NoError(t, err)
		require.Equal(t, Renewed, result.Outcome)

		env := result.Envelope
		assert.Equal(t, "alice", env.Subject)
		assert.Equal(t, "user", env.Role)
		assert.Equal(t, "t1", env.TokenID)
		assert.Equal(t, "r1", env.RefreshToken)
		assert.Equal(t, expiry, env.RefreshExpires)
		assert.Equal(t, testNow.UnixMilli(), env.Timestamp)
		assert.Regexp(t, lowerHex64, env.Signature)

		payload := SigningPayload{Subject: "alice", Role: "user", Timestamp: env.Timestamp}
		require.NoError(t, signer.Verify(ctx, payload, env.Signature))

		token, err := result.Token()
		require.NoError(t, err)
		decoded, err := DecodeEnvelope(token)
		require.NoError(t, err)
		assert.Equal(t, env, decoded)
	})

	t.Run("Outcomes are logged at info", func(t *testing.T) {
		var buf bytes.Buffer
		logger := clog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
		lctx := clog.WithLogger(ctx, logger)

		refresher, err := NewRefresher(testSigner(t), stubVerifier("alice", "t1", "r1"))
		require.NoError(t, err)

		_, err = refresher.Refresh(lctx, req)
		require.NoError(t, err)
		bad := req
		bad.RefreshToken = "stolen"
		_, err = refresher.Refresh(lctx, bad)
		require.NoError(t, err)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 2)
		assert.Contains(t, lines[0], "level=INFO")
		assert.Contains(t, lines[0], "refreshed access token for alice")
		assert.Contains(t, lines[1], "level=INFO")
		assert.Contains(t, lines[1], "refresh token invalid for alice:t1")
	})

	t.Run("Invalid credential is rejected without signing", func(t *testing.T) {
		signer := &countingSigner{Signer: testSigner(t)}
		refresher, err := NewRefresher(signer, stubVerifier("alice", "t1", "other"))
		require.NoError(t, err)

		result, err := refresher.Refresh(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, Rejected, result.Outcome)
		assert.Equal(t, Envelope{}, result.Envelope)
		assert.Equal(t, int64(0), signer.calls.Load())

		token, err := result.Token()
		require.NoError(t, err)
		assert.Empty(t, token)
	})

	t.Run("Successive refreshes never reuse a signature", func(t *testing.T) {
		clock := newFakeClock(testNow)
		refresher, err := NewRefresher(testSigner(t), stubVerifier("alice", "t1", "r1"), WithClock(clock.Now))
		require.NoError(t, err)

		first, err := refresher.Refresh(ctx, req)
		require.NoError(t, err)
		second, err := refresher.Refresh(ctx, req)
		require.NoError(t, err)

		assert.Greater(t, second.Envelope.Timestamp, first.Envelope.Timestamp)
		assert.NotEqual(t, first.Envelope.Signature, second.Envelope.Signature)

		clock.Advance(time.Second)
		third, err := refresher.Refresh(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, testNow.Add(time.Second).UnixMilli(), third.Envelope.Timestamp)
	})

	t.Run("Verifier failure propagates", func(t *testing.T) {
		boom := errors.New("connection refused")
		signer := &countingSigner{Signer: testSigner(t)}
		verifier := VerifierFunc(func(context.Context, string, string, string) (bool, error) {
			return false, boom
		})
		refresher, err := NewRefresher(signer, verifier)
		require.NoError(t, err)

		_, err = refresher.Refresh(ctx, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrVerifierUnavailable)
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, int64(0), signer.calls.Load())
	})

	t.Run("Signing failure propagates", func(t *testing.T) {
		boom := errors.New("hash unavailable")
		refresher, err := NewRefresher(failingSigner{err: boom}, stubVerifier("alice", "t1", "r1"))
		require.NoError(t, err)

		_, err = refresher.Refresh(ctx, req)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSigningFailure)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Canceled context", func(t *testing.T) {
		verifier := NewMemoryRefreshVerifier(time.Minute, nil)
		defer verifier.Close()
		refresher, err := NewRefresher(testSigner(t), verifier)
		require.NoError(t, err)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err = refresher.Refresh(cctx, req)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestNewRefresher(t *testing.T) {
	_, err := NewRefresher(nil, stubVerifier("a", "b", "c"))
	assert.Error(t, err)

	_, err = NewRefresher(testSigner(t), nil)
	assert.Error(t, err)

	_, err = NewRefresherFromConfig(context.Background(), DefaultTokenConfig(""), stubVerifier("a", "b", "c"), nil)
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestRenewIfDue(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock(testNow)
	config := NewTokenConfig("HS256", testSecret, 3600000*time.Millisecond, 300000*time.Millisecond)

	verifier := NewMemoryRefreshVerifier(time.Minute, clock.Now)
	defer verifier.Close()
	tokenID, expiresAt, err := verifier.Register("alice", "r1", 7*24*time.Hour)
	require.NoError(t, err)

	refresher, err := NewRefresherFromConfig(ctx, config, verifier, clock.Now)
	require.NoError(t, err)

	issue := func(t *testing.T, age time.Duration, refreshToken string) Envelope {
		t.Helper()
		signer := testSigner(t)
		env := Envelope{
			Subject:        "alice",
			Role:           "user",
			Timestamp:      testNow.Add(-age).UnixMilli(),
			TokenID:        tokenID,
			RefreshToken:   refreshToken,
			RefreshExpires: expiresAt.UnixMilli(),
		}
		sig, err := signer.Sign(ctx, env.SigningPayload())
		require.NoError(t, err)
		env.Signature = sig
		return env
	}

	t.Run("Not due", func(t *testing.T) {
		decision, _, err := refresher.RenewIfDue(ctx, issue(t, 3000000*time.Millisecond, "r1"))
		require.NoError(t, err)
		assert.Equal(t, NotDue, decision)
	})

	t.Run("Expired", func(t *testing.T) {
		decision, _, err := refresher.RenewIfDue(ctx, issue(t, 3700000*time.Millisecond, "r1"))
		require.NoError(t, err)
		assert.Equal(t, Expired, decision)
	})

	t.Run("Due and renewed", func(t *testing.T) {
		env := issue(t, 3400000*time.Millisecond, "r1")
		decision, result, err := refresher.RenewIfDue(ctx, env)
		require.NoError(t, err)
		assert.Equal(t, RenewalIssued, decision)
		assert.Equal(t, Renewed, result.Outcome)
		assert.Equal(t, testNow.UnixMilli(), result.Envelope.Timestamp)
		assert.Equal(t, env.RefreshExpires, result.Envelope.RefreshExpires)
	})

	t.Run("Due with wrong credential", func(t *testing.T) {
		decision, result, err := refresher.RenewIfDue(ctx, issue(t, 3400000*time.Millisecond, "stolen"))
		require.NoError(t, err)
		assert.Equal(t, RenewalRejected, decision)
		assert.Equal(t, Rejected, result.Outcome)
	})

	t.Run("Tampered envelope", func(t *testing.T) {
		env := issue(t, 3400000*time.Millisecond, "r1")
		env.Role = "admin"
		decision, _, err := refresher.RenewIfDue(ctx, env)
		assert.ErrorIs(t, err, ErrSignatureMismatch)
		assert.Equal(t, RenewalFailed, decision)
	})

	t.Run("Verifier failure", func(t *testing.T) {
		down := VerifierFunc(func(context.Context, string, string, string) (bool, error) {
			return false, errors.New("connection refused")
		})
		policy, err := NewRenewalPolicy(config, clock.Now)
		require.NoError(t, err)
		failing, err := NewRefresher(testSigner(t), down, WithClock(clock.Now), WithPolicy(policy))
		require.NoError(t, err)

		decision, _, err := failing.RenewIfDue(ctx, issue(t, 3400000*time.Millisecond, "r1"))
		assert.ErrorIs(t, err, ErrVerifierUnavailable)
		assert.Equal(t, RenewalFailed, decision)
	})

	t.Run("No policy", func(t *testing.T) {
		bare, err := NewRefresher(testSigner(t), verifier)
		require.NoError(t, err)
		decision, _, err := bare.RenewIfDue(ctx, issue(t, 3400000*time.Millisecond, "r1"))
		assert.Error(t, err)
		assert.Equal(t, RenewalFailed, decision)
	})
}

func TestOutcomeStrings(t *testing.T) {
	assert.Equal(t, "renewed", Renewed.String())
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "failed", RenewalFailed.String())
	assert.Equal(t, "not_due", NotDue.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "issued", RenewalIssued.String())
	assert.Equal(t, "RefreshOutcome(7)", RefreshOutcome(7).String())
}
