package sessiontoken

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chainguard-dev/clog"
)

// RefreshOutcome is the result kind of a refresh attempt.
type RefreshOutcome int

const (
	// Rejected means the verifier reported the refresh credential invalid.
	// The caller is expected to force re-authentication.
	Rejected RefreshOutcome = iota
	// Renewed means a new envelope was signed.
	Renewed
)

func (o RefreshOutcome) String() string {
	switch o {
	case Renewed:
		return "renewed"
	case Rejected:
		return "rejected"
	default:
		return fmt.Sprintf("RefreshOutcome(%d)", int(o))
	}
}

// RefreshRequest carries the refresh credential presented by the caller.
type RefreshRequest struct {
	Subject        string
	Role           string
	TokenID        string
	RefreshToken   string
	RefreshExpires int64 // ms since epoch, carried through unchanged
}

// RefreshResult is either Renewed with an Envelope or Rejected with none.
//
// Check the error first. Failed calls return the zero RefreshResult, whose
// Outcome reads as Rejected.
type RefreshResult struct {
	Outcome  RefreshOutcome
	Envelope Envelope
}

// Token returns the encoded envelope of a Renewed result. It returns an empty
// string for Rejected.
func (r RefreshResult) Token() (string, error) {
	if r.Outcome != Renewed {
		return "", nil
	}
	return r.Envelope.Encode()
}

// RenewalDecision is what RenewIfDue did with an envelope.
type RenewalDecision int

const (
	// RenewalFailed accompanies every non-nil error from RenewIfDue. The
	// envelope must not be trusted.
	RenewalFailed RenewalDecision = iota
	// NotDue means the envelope is outside its renewal window and still valid.
	NotDue
	// Expired means the envelope is past its lifetime; renewal is not offered.
	Expired
	// RenewalRejected means a refresh was attempted and the credential was invalid.
	RenewalRejected
	// RenewalIssued means a refresh was attempted and a new envelope was signed.
	RenewalIssued
)

func (d RenewalDecision) String() string {
	switch d {
	case RenewalFailed:
		return "failed"
	case NotDue:
		return "not_due"
	case Expired:
		return "expired"
	case RenewalRejected:
		return "rejected"
	case RenewalIssued:
		return "issued"
	default:
		return fmt.Sprintf("RenewalDecision(%d)", int(d))
	}
}

// Refresher exchanges verified refresh credentials for freshly signed envelopes.
//
// Refresher holds no mutable state apart from the last issued timestamp, which
// keeps timestamps strictly increasing. It is safe for concurrent use.
// Concurrent refreshes of the same token ID are not deduplicated.
type Refresher struct {
	signer     Signer
	verifier   RefreshVerifier
	policy     *RenewalPolicy
	now        Clock
	lastIssued atomic.Int64
}

// RefresherOption configures a Refresher.
type RefresherOption func(*Refresher)

// WithClock sets the time source used for envelope timestamps.
func WithClock(clock Clock) RefresherOption {
	return func(r *Refresher) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithPolicy sets the renewal policy used by RenewIfDue.
func WithPolicy(policy *RenewalPolicy) RefresherOption {
	return func(r *Refresher) {
		r.policy = policy
	}
}

// NewRefresher creates a Refresher from its collaborators.
func NewRefresher(signer Signer, verifier RefreshVerifier, opts ...RefresherOption) (*Refresher, error) {
	if signer == nil {
		return nil, fmt.Errorf("signer cannot be nil")
	}
	if verifier == nil {
		return nil, fmt.Errorf("verifier cannot be nil")
	}

	r := &Refresher{
		signer:   signer,
		verifier: verifier,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// NewRefresherFromConfig builds the HMAC signer and renewal policy from config
// and wires them to verifier. A nil clock means time.Now.
func NewRefresherFromConfig(ctx context.Context, config TokenConfig, verifier RefreshVerifier, clock Clock) (*Refresher, error) {
	signer, err := NewHMACSigner(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create signer: %w", err)
	}

	policy, err := NewRenewalPolicy(config, clock)
	if err != nil {
		return nil, fmt.Errorf("failed to create renewal policy: %w", err)
	}

	clog.FromContext(ctx).Debug("sessiontoken: refresher configured", "config", config)

	return NewRefresher(signer, verifier, WithClock(clock), WithPolicy(policy))
}

// Refresh verifies the presented credential and, if valid, signs a new envelope.
//
// An invalid credential is not an error: the result is Rejected and the signer
// is never invoked. Verifier and signer failures are returned wrapped in
// ErrVerifierUnavailable and ErrSigningFailure. Nothing is retried.
func (r *Refresher) Refresh(ctx context.Context, req RefreshRequest) (RefreshResult, error) {
	log := clog.FromContext(ctx)

	valid, err := r.verifier.VerifyRefreshToken(ctx, req.Subject, req.TokenID, req.RefreshToken)
	if err != nil {
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrVerifierUnavailable, err)
	}
	if !valid {
		log.Infof("refresh token invalid for %s:%s", req.Subject, req.TokenID)
		return RefreshResult{Outcome: Rejected}, nil
	}

	payload := SigningPayload{
		Subject:   req.Subject,
		Role:      req.Role,
		Timestamp: r.nextTimestamp(),
	}

	signature, err := r.signer.Sign(ctx, payload)
	if err != nil {
		if errors.Is(err, ErrSigningFailure) {
			return RefreshResult{}, err
		}
		return RefreshResult{}, fmt.Errorf("%w: %w", ErrSigningFailure, err)
	}

	log.Infof("refreshed access token for %s", req.Subject)

	return RefreshResult{
		Outcome: Renewed,
		Envelope: Envelope{
			Subject:        payload.Subject,
			Role:           payload.Role,
			Timestamp:      payload.Timestamp,
			TokenID:        req.TokenID,
			RefreshToken:   req.RefreshToken,
			RefreshExpires: req.RefreshExpires,
			Signature:      signature,
		},
	}, nil
}

// RenewIfDue applies the renewal policy to env and refreshes it when it is
// inside its renewal window. Expired envelopes are never refreshed.
//
// The envelope signature is checked first; a tampered envelope yields
// ErrSignatureMismatch. Every error is returned with RenewalFailed.
func (r *Refresher) RenewIfDue(ctx context.Context, env Envelope) (RenewalDecision, RefreshResult, error) {
	if r.policy == nil {
		return RenewalFailed, RefreshResult{}, fmt.Errorf("renewal policy not configured")
	}

	if err := VerifyEnvelope(ctx, r.signer, env); err != nil {
		return RenewalFailed, RefreshResult{}, err
	}

	issuedAt := env.IssuedAt()
	if r.policy.IsExpired(issuedAt) {
		return Expired, RefreshResult{}, nil
	}
	if !r.policy.ShouldRenew(issuedAt) {
		return NotDue, RefreshResult{}, nil
	}

	result, err := r.Refresh(ctx, RefreshRequest{
		Subject:        env.Subject,
		Role:           env.Role,
		TokenID:        env.TokenID,
		RefreshToken:   env.RefreshToken,
		RefreshExpires: env.RefreshExpires,
	})
	if err != nil {
		return RenewalFailed, RefreshResult{}, err
	}
	if result.Outcome == Rejected {
		return RenewalRejected, result, nil
	}
	return RenewalIssued, result, nil
}

// nextTimestamp returns the current time in milliseconds, bumped past the
// previously issued timestamp when the clock has not advanced.
func (r *Refresher) nextTimestamp() int64 {
	for {
		last := r.lastIssued.Load()
		ts := toMillis(r.now())
		if ts <= last {
			ts = last + 1
		}
		if r.lastIssued.CompareAndSwap(last, ts) {
			return ts
		}
	}
}
