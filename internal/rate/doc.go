// Package rate implements the default Redis-backed request gate used in
// front of signin and MFA verification.
//
// The limiter is a fixed-window counter per caller-supplied key (the engine
// keys it "ip:email"). It answers a plain allow/deny; lockout accounting is a
// separate concern and lives with the engine's lockout store.
package rate
