// testhelpers_test.go

package sessiontoken

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-32-bytes-long-1234567890"

// testNow is the fixed instant used by deterministic tests.
var testNow = time.UnixMilli(1700000000000)

// fakeClock is a settable Clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// countingSigner wraps a Signer and counts Sign calls.
type countingSigner struct {
	Signer
	calls atomic.Int64
}

func (s *countingSigner) Sign(ctx context.Context, payload SigningPayload) (string, error) {
	s.calls.Add(1)
	return s.Signer.Sign(ctx, payload)
}

// failingSigner always fails with err.
type failingSigner struct {
	err error
}

func (s failingSigner) Sign(context.Context, SigningPayload) (string, error) {
	return "", s.err
}

func (s failingSigner) Verify(context.Context, SigningPayload, string) error {
	return s.err
}

// stubVerifier accepts exactly one credential.
func stubVerifier(subject, tokenID, refreshToken string) VerifierFunc {
	return func(_ context.Context, s, id, r string) (bool, error) {
		return s == subject && id == tokenID && r == refreshToken, nil
	}
}

func testSigner(t *testing.T) *HMACSigner {
	t.Helper()
	signer, err := NewHMACSigner(context.Background(), DefaultTokenConfig(testSecret))
	require.NoError(t, err)
	return signer
}

func testPolicy(t *testing.T, clock Clock) *RenewalPolicy {
	t.Helper()
	config := NewTokenConfig("HS256", testSecret, 3600000*time.Millisecond, 300000*time.Millisecond)
	policy, err := NewRenewalPolicy(config, clock)
	require.NoError(t, err)
	return policy
}

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return mr, client
}
