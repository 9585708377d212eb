package signet

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// Config is the full engine configuration. Zero values are filled from
// [defaultConfig] by the builder; Validate rejects combinations that would
// weaken the documented security behavior.
type Config struct {
	JWT         JWTConfig
	Session     SessionConfig
	Lockout     LockoutConfig
	MFA         MFAConfig
	DeviceTrust DeviceTrustConfig
	Password    PasswordConfig
	Security    SecurityConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// JWTConfig controls token issuance and verification.
type JWTConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	SigningMethod string // "ed25519" (default), "hs256" for tests
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	KeyID         string
	// VerifyKeys maps key ids to public keys so tokens signed under a
	// previous key remain verifiable during rotation.
	VerifyKeys map[string][]byte
	Leeway     time.Duration
}

// SessionConfig controls session persistence and the concurrent-session cap.
type SessionConfig struct {
	RedisPrefix string
	TTL         time.Duration
	MaxPerUser  int
	// StrictValidation makes ValidateAccess confirm the backing session
	// still exists in Redis instead of trusting the signature alone.
	StrictValidation bool
}

// LockoutConfig controls the brute-force lockout tracker.
type LockoutConfig struct {
	RedisPrefix      string
	Threshold        int
	LockDuration     time.Duration
	PasswordResetURL string
}

// MFAConfig controls challenge issuance, TOTP verification, and replay
// tracking.
type MFAConfig struct {
	RedisPrefix    string
	ChallengeTTL   time.Duration
	MaxAttempts    int
	SMSCodeDigits  int
	TOTPDigits     int
	TOTPPeriod     int // seconds
	TOTPSkew       int // accepted steps either side of now
	TOTPAlgorithm  string
	UsedCodePrefix string
	UsedCodeTTL    time.Duration
}

// DeviceTrustConfig controls the remember-device bypass.
type DeviceTrustConfig struct {
	RedisPrefix string
	TTL         time.Duration
	MaxPerUser  int
}

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

// SecurityConfig holds rate limiting and cookie policy.
type SecurityConfig struct {
	EnableRateLimiting   bool
	RateLimitMaxAttempts int
	RateLimitWindow      time.Duration
	SecureCookies        bool
	SameSitePolicy       http.SameSite
	CookieDomain         string
	AccessCookieName     string
	RefreshCookieName    string
	RefreshCookiePath    string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

func defaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Issuer:        "signet",
			Audience:      "signet",
		},
		Session: SessionConfig{
			RedisPrefix:      "ss",
			TTL:              7 * 24 * time.Hour,
			MaxPerUser:       5,
			StrictValidation: false,
		},
		Lockout: LockoutConfig{
			RedisPrefix:  "lk",
			Threshold:    5,
			LockDuration: 15 * time.Minute,
		},
		MFA: MFAConfig{
			RedisPrefix:    "mc",
			ChallengeTTL:   5 * time.Minute,
			MaxAttempts:    3,
			SMSCodeDigits:  6,
			TOTPDigits:     6,
			TOTPPeriod:     30,
			TOTPSkew:       1,
			TOTPAlgorithm:  "SHA1",
			UsedCodePrefix: "uc",
			UsedCodeTTL:    24 * time.Hour,
		},
		DeviceTrust: DeviceTrustConfig{
			RedisPrefix: "td",
			TTL:         30 * 24 * time.Hour,
			MaxPerUser:  10,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		Security: SecurityConfig{
			EnableRateLimiting:   true,
			RateLimitMaxAttempts: 20,
			RateLimitWindow:      time.Minute,
			SecureCookies:        true,
			SameSitePolicy:       http.SameSiteStrictMode,
			AccessCookieName:     "signet_access",
			RefreshCookieName:    "signet_refresh",
			RefreshCookiePath:    "/auth/refresh",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.JWT.VerifyKeys != nil {
		out.JWT.VerifyKeys = make(map[string][]byte, len(cfg.JWT.VerifyKeys))
		for kid, key := range cfg.JWT.VerifyKeys {
			out.JWT.VerifyKeys[kid] = cloneBytes(key)
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT RefreshTTL must be > 0")
	}
	if c.JWT.SigningMethod != "ed25519" && c.JWT.SigningMethod != "hs256" {
		return errors.New("unsupported JWT signing method")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("ed25519 requires PrivateKey")
	}
	if c.JWT.SigningMethod == "ed25519" && len(c.JWT.PublicKey) == 0 {
		return errors.New("ed25519 requires PublicKey")
	}
	if c.JWT.SigningMethod == "hs256" && len(c.JWT.PrivateKey) == 0 {
		return errors.New("hs256 requires PrivateKey")
	}
	if c.JWT.Leeway < 0 {
		return errors.New("JWT Leeway must be >= 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return errors.New("Session TTL must be > 0")
	}
	if c.Session.MaxPerUser <= 0 {
		return errors.New("Session MaxPerUser must be > 0")
	}
	if c.Session.RedisPrefix == "" {
		return errors.New("Session RedisPrefix is required")
	}

	// Lockout
	if c.Lockout.Threshold <= 0 {
		return errors.New("Lockout Threshold must be > 0")
	}
	if c.Lockout.LockDuration <= 0 {
		return errors.New("Lockout LockDuration must be > 0")
	}
	if c.Lockout.RedisPrefix == "" {
		return errors.New("Lockout RedisPrefix is required")
	}

	// MFA
	if c.MFA.ChallengeTTL <= 0 {
		return errors.New("MFA ChallengeTTL must be > 0")
	}
	if c.MFA.MaxAttempts <= 0 {
		return errors.New("MFA MaxAttempts must be > 0")
	}
	if c.MFA.SMSCodeDigits < 6 || c.MFA.SMSCodeDigits > 10 {
		return errors.New("MFA SMSCodeDigits must be between 6 and 10")
	}
	if c.MFA.TOTPDigits != 6 && c.MFA.TOTPDigits != 8 {
		return errors.New("MFA TOTPDigits must be 6 or 8")
	}
	if c.MFA.TOTPPeriod < 15 {
		return errors.New("MFA TOTPPeriod must be >= 15 seconds")
	}
	if c.MFA.TOTPSkew < 0 || c.MFA.TOTPSkew > 2 {
		return errors.New("MFA TOTPSkew must be between 0 and 2")
	}
	switch strings.ToUpper(c.MFA.TOTPAlgorithm) {
	case "", "SHA1", "SHA256", "SHA512":
		// valid (empty treated as SHA1)
	default:
		return errors.New("MFA TOTPAlgorithm must be SHA1, SHA256, or SHA512")
	}
	if c.MFA.UsedCodeTTL <= 0 {
		return errors.New("MFA UsedCodeTTL must be > 0")
	}
	if c.MFA.RedisPrefix == "" || c.MFA.UsedCodePrefix == "" {
		return errors.New("MFA Redis prefixes are required")
	}

	// Device trust
	if c.DeviceTrust.TTL <= 0 {
		return errors.New("DeviceTrust TTL must be > 0")
	}
	if c.DeviceTrust.MaxPerUser <= 0 {
		return errors.New("DeviceTrust MaxPerUser must be > 0")
	}
	if c.DeviceTrust.RedisPrefix == "" {
		return errors.New("DeviceTrust RedisPrefix is required")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Security
	if c.Security.EnableRateLimiting {
		if c.Security.RateLimitMaxAttempts <= 0 {
			return errors.New("RateLimitMaxAttempts must be > 0 when rate limiting is enabled")
		}
		if c.Security.RateLimitWindow <= 0 {
			return errors.New("RateLimitWindow must be > 0 when rate limiting is enabled")
		}
	}
	if c.Security.AccessCookieName == "" || c.Security.RefreshCookieName == "" {
		return errors.New("cookie names are required")
	}
	if c.Security.RefreshCookiePath == "" {
		return errors.New("RefreshCookiePath is required")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
