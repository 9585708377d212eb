// Package signet is an authentication and session-security engine backed by
// Redis: credential validation with timing-attack resistance, brute-force
// lockout, TOTP/SMS multi-factor challenges with replay prevention,
// device-trust MFA bypass, capped concurrent sessions with oldest-first
// eviction, and signed access/refresh token issuance with rotation-based
// reuse detection.
//
// The engine is built once through the [Builder] and is safe for concurrent
// use afterwards:
//
//	engine, err := signet.New().
//	    WithConfig(cfg).
//	    WithRedis(rdb).
//	    WithUserProvider(provider).
//	    Build()
//
// Business outcomes (wrong password, locked account, expired challenge) are
// tagged result values, never errors; errors are reserved for infrastructure
// failures and caller mistakes.
package signet
