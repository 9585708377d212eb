package internaldefs

import (
	signet "github.com/signet-auth/signet"
)

// CounterDef binds an engine counter to its exported name.
type CounterDef struct {
	ID   signet.MetricID
	Name string
	Help string
}

// HistogramDef binds an engine histogram to its exported name.
type HistogramDef struct {
	ID   signet.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: signet.MetricSigninSuccess, Name: "signet_signin_success_total", Help: "Successful signin attempts."},
	{ID: signet.MetricSigninFailure, Name: "signet_signin_failure_total", Help: "Failed signin attempts."},
	{ID: signet.MetricSigninRateLimited, Name: "signet_signin_rate_limited_total", Help: "Rate-limited signin attempts."},
	{ID: signet.MetricSigninMFARequired, Name: "signet_signin_mfa_required_total", Help: "Signin flows requiring an MFA challenge."},
	{ID: signet.MetricTrustBypass, Name: "signet_trust_bypass_total", Help: "MFA challenges bypassed by a trusted device."},
	{ID: signet.MetricAccountLocked, Name: "signet_account_locked_total", Help: "Accounts locked after excessive failed attempts."},
	{ID: signet.MetricAccountUnlocked, Name: "signet_account_unlocked_total", Help: "Accounts unlocked by expiry or password reset."},
	{ID: signet.MetricMFASuccess, Name: "signet_mfa_success_total", Help: "Successful MFA verifications."},
	{ID: signet.MetricMFAFailure, Name: "signet_mfa_failure_total", Help: "Failed MFA verifications."},
	{ID: signet.MetricMFAReplayAttempt, Name: "signet_mfa_replay_attempt_total", Help: "Detected reuse of an already-accepted one-time code."},
	{ID: signet.MetricMFAAttemptsExceeded, Name: "signet_mfa_attempts_exceeded_total", Help: "MFA challenges invalidated due to the attempt cap."},
	{ID: signet.MetricDeviceRemembered, Name: "signet_device_remembered_total", Help: "Device trust grants."},
	{ID: signet.MetricDeviceRevoked, Name: "signet_device_revoked_total", Help: "Device trust revocations."},
	{ID: signet.MetricSessionCreated, Name: "signet_session_created_total", Help: "Created sessions."},
	{ID: signet.MetricSessionInvalidated, Name: "signet_session_invalidated_total", Help: "Invalidated sessions."},
	{ID: signet.MetricSessionEvicted, Name: "signet_session_evicted_total", Help: "Sessions evicted by the per-user cap."},
	{ID: signet.MetricRefreshSuccess, Name: "signet_refresh_success_total", Help: "Successful refresh operations."},
	{ID: signet.MetricRefreshFailure, Name: "signet_refresh_failure_total", Help: "Failed refresh operations."},
	{ID: signet.MetricRefreshReuseDetected, Name: "signet_refresh_reuse_detected_total", Help: "Detected refresh token reuses."},
	{ID: signet.MetricSignout, Name: "signet_signout_total", Help: "Single-session signout operations."},
	{ID: signet.MetricSignoutAll, Name: "signet_signout_all_total", Help: "Signout-all operations."},
	{ID: signet.MetricPasswordChangeSuccess, Name: "signet_password_change_success_total", Help: "Successful password changes."},
	{ID: signet.MetricPasswordChangeFailure, Name: "signet_password_change_failure_total", Help: "Failed password changes."},
}

// HistogramDefs lists every exported histogram in a stable order.
var HistogramDefs = []HistogramDef{
	{ID: signet.MetricSigninLatency, Name: "signet_signin_latency_seconds", Help: "Signin latency histogram."},
}

// HistogramBounds are the bucket upper bounds in seconds, as rendered by
// the Prometheus exporter.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix holds per-bucket name suffixes for exporters that
// cannot carry an le label.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates a raw snapshot slice to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus expects.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
