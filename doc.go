// Package sessiontoken issues, renews and checks short-lived signed access envelopes
// for a session authentication layer.
//
// # Overview
//
// The package provides:
// - HMAC signing of a canonical {username, role, timestamp} payload
// - Renewal window detection based on access-token age
// - Exchange of a verified refresh credential for a freshly signed envelope
// - Redis and in-memory refresh-credential verifier adapters
// - Percent-encoded JSON wire format safe for cookies and headers
//
// # Envelope
//
// An Envelope carries the subject, role and issuance timestamp together with
// the refresh credential it was minted from. Only subject, role and timestamp
// are signed; the refresh fields ride along unchanged.
//
// # Renewal
//
// RenewalPolicy offers renewal during the last RenewalThreshold of an
// envelope's AccessTokenAge. An envelope past its age is expired and must
// lead to re-authentication, never to a silent renewal.
//
// # Usage
//
//	config, err := sessiontoken.LoadTokenConfigFromEnv()
//	if err != nil {
//	    return err
//	}
//	refresher, err := sessiontoken.NewRefresherFromConfig(ctx, config, verifier, nil)
//	if err != nil {
//	    return err
//	}
//	decision, result, err := refresher.RenewIfDue(ctx, current)
//	if err != nil {
//	    return err
//	}
//	if decision == sessiontoken.RenewalIssued {
//	    token, err := result.Token()
//	    ...
//	}
//
// The refresh-token store is external: it implements RefreshVerifier.
package sessiontoken
