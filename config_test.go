package signet

import (
	"crypto/ed25519"
	"crypto/rand"
	"strings"
	"testing"
	"time"
)

func validEd25519Config(t *testing.T) Config {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	cfg := defaultConfig()
	cfg.JWT.PrivateKey = priv
	cfg.JWT.PublicKey = pub
	return cfg
}

func TestDefaultConfigValidatesWithKeys(t *testing.T) {
	cfg := validEd25519Config(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing ed25519 private key", func(c *Config) { c.JWT.PrivateKey = nil }, "PrivateKey"},
		{"missing ed25519 public key", func(c *Config) { c.JWT.PublicKey = nil }, "PublicKey"},
		{"unknown signing method", func(c *Config) { c.JWT.SigningMethod = "rs256" }, "signing method"},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTTL = 0 }, "AccessTTL"},
		{"negative leeway", func(c *Config) { c.JWT.Leeway = -time.Second }, "Leeway"},
		{"zero session cap", func(c *Config) { c.Session.MaxPerUser = 0 }, "MaxPerUser"},
		{"empty session prefix", func(c *Config) { c.Session.RedisPrefix = "" }, "RedisPrefix"},
		{"zero lockout threshold", func(c *Config) { c.Lockout.Threshold = 0 }, "Threshold"},
		{"zero lock duration", func(c *Config) { c.Lockout.LockDuration = 0 }, "LockDuration"},
		{"zero challenge ttl", func(c *Config) { c.MFA.ChallengeTTL = 0 }, "ChallengeTTL"},
		{"zero mfa attempts", func(c *Config) { c.MFA.MaxAttempts = 0 }, "MaxAttempts"},
		{"short sms code", func(c *Config) { c.MFA.SMSCodeDigits = 4 }, "SMSCodeDigits"},
		{"odd totp digits", func(c *Config) { c.MFA.TOTPDigits = 7 }, "TOTPDigits"},
		{"tiny totp period", func(c *Config) { c.MFA.TOTPPeriod = 5 }, "TOTPPeriod"},
		{"wide totp skew", func(c *Config) { c.MFA.TOTPSkew = 5 }, "TOTPSkew"},
		{"bad totp algorithm", func(c *Config) { c.MFA.TOTPAlgorithm = "MD5" }, "TOTPAlgorithm"},
		{"zero device ttl", func(c *Config) { c.DeviceTrust.TTL = 0 }, "TTL"},
		{"zero device cap", func(c *Config) { c.DeviceTrust.MaxPerUser = 0 }, "MaxPerUser"},
		{"weak argon2 memory", func(c *Config) { c.Password.Memory = 1024 }, "Memory"},
		{"short salt", func(c *Config) { c.Password.SaltLength = 8 }, "SaltLength"},
		{"rate limit without budget", func(c *Config) {
			c.Security.EnableRateLimiting = true
			c.Security.RateLimitMaxAttempts = 0
		}, "RateLimitMaxAttempts"},
		{"missing cookie names", func(c *Config) { c.Security.AccessCookieName = "" }, "cookie names"},
		{"audit without buffer", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.BufferSize = 0
		}, "BufferSize"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validEd25519Config(t)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestValidateAcceptsHS256WithSecretOnly(t *testing.T) {
	cfg := defaultConfig()
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("shared-secret")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected hs256 config to validate, got %v", err)
	}
}

func TestCloneConfigIsolatesKeyMaterial(t *testing.T) {
	cfg := validEd25519Config(t)
	cfg.JWT.VerifyKeys = map[string][]byte{"k1": append([]byte(nil), cfg.JWT.PublicKey...)}

	cloned := cloneConfig(cfg)
	cloned.JWT.PrivateKey[0] ^= 0xff
	cloned.JWT.VerifyKeys["k1"][0] ^= 0xff

	if cfg.JWT.PrivateKey[0] == cloned.JWT.PrivateKey[0] {
		t.Fatal("expected private key bytes to be independent")
	}
	if cfg.JWT.VerifyKeys["k1"][0] == cloned.JWT.VerifyKeys["k1"][0] {
		t.Fatal("expected verify key bytes to be independent")
	}
}

func TestBuilderFillsZeroConfigFields(t *testing.T) {
	cfg := Config{}
	cfg.JWT.SigningMethod = "hs256"
	cfg.JWT.PrivateKey = []byte("test-secret")
	cfg.Security.EnableRateLimiting = false

	mr, rdb := newTestRedis(t)
	defer mr.Close()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(newMemUserProvider()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	got := engine.Config()
	def := defaultConfig()
	if got.Lockout.Threshold != def.Lockout.Threshold {
		t.Fatalf("expected default lockout threshold %d, got %d", def.Lockout.Threshold, got.Lockout.Threshold)
	}
	if got.Session.MaxPerUser != def.Session.MaxPerUser {
		t.Fatalf("expected default session cap %d, got %d", def.Session.MaxPerUser, got.Session.MaxPerUser)
	}
	if got.MFA.ChallengeTTL != def.MFA.ChallengeTTL {
		t.Fatalf("expected default challenge TTL %v, got %v", def.MFA.ChallengeTTL, got.MFA.ChallengeTTL)
	}
	if got.DeviceTrust.TTL != def.DeviceTrust.TTL {
		t.Fatalf("expected default device trust TTL %v, got %v", def.DeviceTrust.TTL, got.DeviceTrust.TTL)
	}
}
