package signet

import "errors"

var (
	// ErrEngineNotReady is returned when a method is called on an engine that
	// was not produced by a successful Build.
	ErrEngineNotReady = errors.New("engine not initialized")
	// ErrUserNotFound must be returned by [UserProvider] lookups when no
	// account matches. The engine never surfaces it to signin callers.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned by password-change when the current
	// password does not verify.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrPasswordPolicy is returned when a new password fails hashing policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when a new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrAccountInactive is returned by refresh when the backing account is no
	// longer ACTIVE.
	ErrAccountInactive = errors.New("account inactive")
	// ErrTokenInvalid is returned for any token that fails verification:
	// bad signature, expired, wrong type, or unknown key id.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrRefreshReuse is returned when a superseded refresh token is replayed.
	// The backing session is destroyed before this is returned.
	ErrRefreshReuse = errors.New("refresh token reuse detected")
	// ErrSessionNotFound is returned when the referenced session does not
	// exist or has expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCodeDeliveryFailed is returned when an SMS one-time code could not be
	// handed to the [CodeSender].
	ErrCodeDeliveryFailed = errors.New("one-time code delivery failed")
	// ErrBackendUnavailable wraps Redis transport failures surfaced by engine
	// operations. Business outcomes are never mapped onto it.
	ErrBackendUnavailable = errors.New("auth backend unavailable")
	// ErrRateLimiterUnavailable wraps failures of the rate-limit collaborator.
	ErrRateLimiterUnavailable = errors.New("rate limiter unavailable")
)
