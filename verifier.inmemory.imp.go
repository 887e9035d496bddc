// File: verifier.inmemory.imp.go

package sessiontoken

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// credentialEntry is a registered refresh credential.
type credentialEntry struct {
	hash      string
	expiresAt time.Time
	revoked   bool
}

// MemoryRefreshVerifier is an in-memory RefreshVerifier.
// Suitable for development, testing, or single-instance deployments.
type MemoryRefreshVerifier struct {
	mu              sync.RWMutex
	credentials     map[string]credentialEntry
	now             Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	cleanupOnce     sync.Once
}

var _ RefreshVerifier = (*MemoryRefreshVerifier)(nil)

// NewMemoryRefreshVerifier creates an in-memory verifier.
// cleanupInterval determines how often expired entries are removed (default: 5 minutes).
// A nil clock means time.Now. Call Close to stop the cleanup goroutine.
func NewMemoryRefreshVerifier(cleanupInterval time.Duration, clock Clock) *MemoryRefreshVerifier {
	if cleanupInterval <= 0 {
		cleanupInterval = 5 * time.Minute
	}
	if clock == nil {
		clock = time.Now
	}

	m := &MemoryRefreshVerifier{
		credentials:     make(map[string]credentialEntry),
		now:             clock,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	go m.periodicCleanup()

	return m
}

func credentialKey(subject, tokenID string) string {
	return subject + ":" + tokenID
}

// Register records a refresh credential for subject valid for ttl and returns
// a freshly generated token ID together with the credential's expiry.
func (m *MemoryRefreshVerifier) Register(subject, refreshToken string, ttl time.Duration) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("subject cannot be empty")
	}
	if refreshToken == "" {
		return "", time.Time{}, fmt.Errorf("refresh token cannot be empty")
	}
	if ttl <= 0 {
		return "", time.Time{}, fmt.Errorf("ttl must be positive")
	}

	tokenID, err := uuid.NewRandom()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate token ID: %w", err)
	}

	expiresAt := m.now().Add(ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.credentials[credentialKey(subject, tokenID.String())] = credentialEntry{
		hash:      HashRefreshToken(refreshToken),
		expiresAt: expiresAt,
	}

	return tokenID.String(), expiresAt, nil
}

// Revoke marks the (subject, tokenID) credential as revoked. Unknown
// credentials are ignored.
func (m *MemoryRefreshVerifier) Revoke(subject, tokenID string) {
	key := credentialKey(subject, tokenID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.credentials[key]; ok {
		entry.revoked = true
		m.credentials[key] = entry
	}
}

// VerifyRefreshToken reports whether refreshToken is the live, unrevoked
// credential registered for (subject, tokenID).
func (m *MemoryRefreshVerifier) VerifyRefreshToken(ctx context.Context, subject, tokenID, refreshToken string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	entry, exists := m.credentials[credentialKey(subject, tokenID)]
	m.mu.RUnlock()

	if !exists || entry.revoked {
		return false, nil
	}
	if !m.now().Before(entry.expiresAt) {
		return false, nil
	}

	return subtle.ConstantTimeCompare([]byte(entry.hash), []byte(HashRefreshToken(refreshToken))) == 1, nil
}

// Len returns the number of stored credentials, including expired ones not yet cleaned up.
func (m *MemoryRefreshVerifier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.credentials)
}

// periodicCleanup runs cleanup at regular intervals
func (m *MemoryRefreshVerifier) periodicCleanup() {
	ticker := time.NewTicker(m.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanupExpired removes expired credentials
func (m *MemoryRefreshVerifier) cleanupExpired() {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for key, entry := range m.credentials {
		if !now.Before(entry.expiresAt) {
			delete(m.credentials, key)
		}
	}
}

// Close stops the background cleanup goroutine
func (m *MemoryRefreshVerifier) Close() error {
	m.cleanupOnce.Do(func() {
		close(m.stopCleanup)
	})
	return nil
}
