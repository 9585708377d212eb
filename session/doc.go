// Package session persists authenticated sessions in Redis with TTL-based
// expiry, a per-user creation-time index for oldest-first eviction, and an
// atomic token-family rotation primitive for refresh-token reuse detection.
//
// # Design
//
// Sessions are immutable snapshots encoded as versioned binary records; every
// mutation replaces the whole value. Expiry is a derived predicate evaluated
// on read (now > ExpiresAt), so behavior is deterministic in tests and an
// absent session is always equivalent to an invalidated one.
package session
