package signet

import (
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/signet-auth/signet/devicetrust"
	internalaudit "github.com/signet-auth/signet/internal/audit"
	"github.com/signet-auth/signet/jwt"
	"github.com/signet-auth/signet/password"
	"github.com/signet-auth/signet/session"
)

// Engine is the authentication core. Construct it with [New] and the
// builder; a ready engine is immutable and safe for concurrent use.
type Engine struct {
	config Config

	redis      redis.UniversalClient
	sessions   *session.Store
	devices    *devicetrust.Store
	lockouts   *lockoutStore
	challenges *mfaChallengeStore
	usedCodes  *usedCodeStore

	users       UserProvider
	rateLimiter RateLimiter
	codeSender  CodeSender

	passwords *password.Argon2
	totp      *totpManager
	tokens    *jwt.Manager

	audit   *internalaudit.Dispatcher
	metrics *Metrics

	ready bool
}

func (e *Engine) checkReady() error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	return nil
}

// Close shuts down the audit dispatcher after draining buffered events.
// The engine itself holds no other background resources; the Redis client
// belongs to the caller.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// Config returns a copy of the engine's effective configuration.
func (e *Engine) Config() Config {
	return cloneConfig(e.config)
}

// AuditDropped reports how many audit events were discarded due to
// backpressure since the engine was built.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	e.metrics.Inc(id)
}

// normalizeEmail canonicalizes a signin identifier: trimmed and lowercased.
// Lockout principals and provider lookups both use the normalized form.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
