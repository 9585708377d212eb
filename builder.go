package signet

import (
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/signet-auth/signet/devicetrust"
	internalaudit "github.com/signet-auth/signet/internal/audit"
	"github.com/signet-auth/signet/internal/rate"
	"github.com/signet-auth/signet/jwt"
	"github.com/signet-auth/signet/password"
	"github.com/signet-auth/signet/session"
)

// Builder assembles an [Engine]. Collaborators are supplied through the
// With* methods; Build validates the combination and wires the stores.
type Builder struct {
	config    Config
	hasConfig bool

	redis       redis.UniversalClient
	users       UserProvider
	rateLimiter RateLimiter
	codeSender  CodeSender
	auditSink   AuditSink

	metricsEnabled bool
	latencyEnabled bool

	built bool
}

// New starts a builder with the default configuration.
func New() *Builder {
	return &Builder{}
}

// WithConfig supplies the engine configuration. Zero-valued fields are
// filled from the defaults before validation.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.hasConfig = true
	return b
}

// WithRedis supplies the Redis client backing all engine state. The client
// is owned by the caller and is not closed by [Engine.Close].
func (b *Builder) WithRedis(redisClient redis.UniversalClient) *Builder {
	b.redis = redisClient
	return b
}

// WithUserProvider supplies the account lookup interface. Required.
func (b *Builder) WithUserProvider(users UserProvider) *Builder {
	b.users = users
	return b
}

// WithRateLimiter replaces the built-in Redis fixed-window limiter.
func (b *Builder) WithRateLimiter(limiter RateLimiter) *Builder {
	b.rateLimiter = limiter
	return b
}

// WithCodeSender supplies SMS code delivery. Required only when accounts
// use the SMS second factor.
func (b *Builder) WithCodeSender(sender CodeSender) *Builder {
	b.codeSender = sender
	return b
}

// WithAuditSink supplies the destination for audit events. Events flow only
// when AuditConfig.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled turns on the in-process counters.
func (b *Builder) WithMetricsEnabled() *Builder {
	b.metricsEnabled = true
	return b
}

// WithLatencyHistograms turns on the signin latency histogram. Implies
// metrics.
func (b *Builder) WithLatencyHistograms() *Builder {
	b.metricsEnabled = true
	b.latencyEnabled = true
	return b
}

// Build validates the configuration and collaborators and returns a ready
// [Engine]. A builder can build at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if !b.hasConfig {
		b.config = defaultConfig()
	}
	b.config = applyConfigDefaults(b.config)
	if b.metricsEnabled {
		b.config.Metrics.Enabled = true
	}
	if b.latencyEnabled {
		b.config.Metrics.EnableLatencyHistograms = true
	}

	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client is required")
	}
	if b.users == nil {
		return nil, errors.New("user provider is required")
	}

	passwords, err := password.NewArgon2(password.Config{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     b.config.JWT.AccessTTL,
		RefreshTTL:    b.config.JWT.RefreshTTL,
		SigningMethod: jwt.SigningMethod(b.config.JWT.SigningMethod),
		PrivateKey:    b.config.JWT.PrivateKey,
		PublicKey:     b.config.JWT.PublicKey,
		Issuer:        b.config.JWT.Issuer,
		Audience:      b.config.JWT.Audience,
		Leeway:        b.config.JWT.Leeway,
		KeyID:         b.config.JWT.KeyID,
		VerifyKeys:    b.config.JWT.VerifyKeys,
	})
	if err != nil {
		return nil, err
	}

	limiter := b.rateLimiter
	if limiter == nil && b.config.Security.EnableRateLimiting {
		limiter = rate.New(b.redis, rate.Config{
			MaxAttempts: b.config.Security.RateLimitMaxAttempts,
			Window:      b.config.Security.RateLimitWindow,
		})
	}

	var dispatcher *internalaudit.Dispatcher
	if b.config.Audit.Enabled {
		dispatcher = internalaudit.NewDispatcher(internalaudit.DispatcherConfig{
			BufferSize: b.config.Audit.BufferSize,
			DropIfFull: b.config.Audit.DropIfFull,
		}, b.auditSink)
	}

	engine := &Engine{
		config:      b.config,
		redis:       b.redis,
		sessions:    session.NewStore(b.redis, b.config.Session.RedisPrefix),
		devices:     devicetrust.NewStore(b.redis, b.config.DeviceTrust.RedisPrefix),
		lockouts:    newLockoutStore(b.redis, b.config.Lockout.RedisPrefix),
		challenges:  newMFAChallengeStore(b.redis, b.config.MFA.RedisPrefix),
		usedCodes:   newUsedCodeStore(b.redis, b.config.MFA.UsedCodePrefix),
		users:       b.users,
		rateLimiter: limiter,
		codeSender:  b.codeSender,
		passwords:   passwords,
		totp:        newTOTPManager(b.config.MFA),
		tokens:      tokens,
		audit:       dispatcher,
		metrics:     NewMetrics(b.config.Metrics),
		ready:       true,
	}

	b.built = true
	return engine, nil
}

// applyConfigDefaults fills zero-valued fields so callers only configure
// what they want to change.
func applyConfigDefaults(cfg Config) Config {
	def := defaultConfig()

	if cfg.JWT.AccessTTL == 0 {
		cfg.JWT.AccessTTL = def.JWT.AccessTTL
	}
	if cfg.JWT.RefreshTTL == 0 {
		cfg.JWT.RefreshTTL = def.JWT.RefreshTTL
	}
	if cfg.JWT.SigningMethod == "" {
		cfg.JWT.SigningMethod = def.JWT.SigningMethod
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = def.JWT.Issuer
	}
	if cfg.JWT.Audience == "" {
		cfg.JWT.Audience = def.JWT.Audience
	}

	if cfg.Session.RedisPrefix == "" {
		cfg.Session.RedisPrefix = def.Session.RedisPrefix
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = def.Session.TTL
	}
	if cfg.Session.MaxPerUser == 0 {
		cfg.Session.MaxPerUser = def.Session.MaxPerUser
	}

	if cfg.Lockout.RedisPrefix == "" {
		cfg.Lockout.RedisPrefix = def.Lockout.RedisPrefix
	}
	if cfg.Lockout.Threshold == 0 {
		cfg.Lockout.Threshold = def.Lockout.Threshold
	}
	if cfg.Lockout.LockDuration == 0 {
		cfg.Lockout.LockDuration = def.Lockout.LockDuration
	}

	if cfg.MFA.RedisPrefix == "" {
		cfg.MFA.RedisPrefix = def.MFA.RedisPrefix
	}
	if cfg.MFA.ChallengeTTL == 0 {
		cfg.MFA.ChallengeTTL = def.MFA.ChallengeTTL
	}
	if cfg.MFA.MaxAttempts == 0 {
		cfg.MFA.MaxAttempts = def.MFA.MaxAttempts
	}
	if cfg.MFA.SMSCodeDigits == 0 {
		cfg.MFA.SMSCodeDigits = def.MFA.SMSCodeDigits
	}
	if cfg.MFA.TOTPDigits == 0 {
		cfg.MFA.TOTPDigits = def.MFA.TOTPDigits
	}
	if cfg.MFA.TOTPPeriod == 0 {
		cfg.MFA.TOTPPeriod = def.MFA.TOTPPeriod
	}
	if cfg.MFA.TOTPAlgorithm == "" {
		cfg.MFA.TOTPAlgorithm = def.MFA.TOTPAlgorithm
	}
	if cfg.MFA.UsedCodePrefix == "" {
		cfg.MFA.UsedCodePrefix = def.MFA.UsedCodePrefix
	}
	if cfg.MFA.UsedCodeTTL == 0 {
		cfg.MFA.UsedCodeTTL = def.MFA.UsedCodeTTL
	}

	if cfg.DeviceTrust.RedisPrefix == "" {
		cfg.DeviceTrust.RedisPrefix = def.DeviceTrust.RedisPrefix
	}
	if cfg.DeviceTrust.TTL == 0 {
		cfg.DeviceTrust.TTL = def.DeviceTrust.TTL
	}
	if cfg.DeviceTrust.MaxPerUser == 0 {
		cfg.DeviceTrust.MaxPerUser = def.DeviceTrust.MaxPerUser
	}

	if cfg.Password.Memory == 0 {
		cfg.Password.Memory = def.Password.Memory
	}
	if cfg.Password.Time == 0 {
		cfg.Password.Time = def.Password.Time
	}
	if cfg.Password.Parallelism == 0 {
		cfg.Password.Parallelism = def.Password.Parallelism
	}
	if cfg.Password.SaltLength == 0 {
		cfg.Password.SaltLength = def.Password.SaltLength
	}
	if cfg.Password.KeyLength == 0 {
		cfg.Password.KeyLength = def.Password.KeyLength
	}

	if cfg.Security.EnableRateLimiting {
		if cfg.Security.RateLimitMaxAttempts == 0 {
			cfg.Security.RateLimitMaxAttempts = def.Security.RateLimitMaxAttempts
		}
		if cfg.Security.RateLimitWindow == 0 {
			cfg.Security.RateLimitWindow = def.Security.RateLimitWindow
		}
	}
	if cfg.Security.AccessCookieName == "" {
		cfg.Security.AccessCookieName = def.Security.AccessCookieName
	}
	if cfg.Security.RefreshCookieName == "" {
		cfg.Security.RefreshCookieName = def.Security.RefreshCookieName
	}
	if cfg.Security.RefreshCookiePath == "" {
		cfg.Security.RefreshCookiePath = def.Security.RefreshCookiePath
	}

	if cfg.Audit.Enabled && cfg.Audit.BufferSize == 0 {
		cfg.Audit.BufferSize = def.Audit.BufferSize
	}

	return cfg
}
