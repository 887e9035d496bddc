package sessiontoken

import (
	"time"
)

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time

// RenewalPolicy decides whether an access envelope is inside its renewal window.
//
// The window is the last RenewalThreshold of the envelope's AccessTokenAge:
//
//	issuedAt ─────────────── [ renewal window ) expiry
//	                          ^ age − threshold  ^ age
//
// An envelope past expiry is never renewable; expiry is a hard
// re-authentication boundary. RenewalPolicy is immutable and safe for
// concurrent use.
type RenewalPolicy struct {
	accessTokenAge   time.Duration
	renewalThreshold time.Duration
	now              Clock
}

// NewRenewalPolicy creates a policy from a validated config. A nil clock
// means time.Now.
func NewRenewalPolicy(config TokenConfig, clock Clock) (*RenewalPolicy, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = time.Now
	}
	return &RenewalPolicy{
		accessTokenAge:   config.AccessTokenAge,
		renewalThreshold: config.RenewalThreshold,
		now:              clock,
	}, nil
}

// Remaining returns AccessTokenAge minus the age of an envelope issued at issuedAt.
// The result is non-positive once the envelope has expired.
func (p *RenewalPolicy) Remaining(issuedAt time.Time) time.Duration {
	age := p.now().Sub(issuedAt)
	return p.accessTokenAge - age
}

// ShouldRenew reports whether 0 < remaining < RenewalThreshold.
func (p *RenewalPolicy) ShouldRenew(issuedAt time.Time) bool {
	remaining := p.Remaining(issuedAt)
	return remaining > 0 && remaining < p.renewalThreshold
}

// ShouldRenewMillis is ShouldRenew for an envelope timestamp in epoch milliseconds.
func (p *RenewalPolicy) ShouldRenewMillis(timestamp int64) bool {
	return p.ShouldRenew(fromMillis(timestamp))
}

// IsExpired reports whether an envelope issued at issuedAt is past its lifetime.
func (p *RenewalPolicy) IsExpired(issuedAt time.Time) bool {
	return p.Remaining(issuedAt) <= 0
}
