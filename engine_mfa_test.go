package signet

import (
	"context"
	"testing"
	"time"
)

// totpTestSecret is the RFC 4226 sample key.
var totpTestSecret = []byte("12345678901234567890")

func totpUser(t *testing.T, userID, email, plaintext string) UserRecord {
	t.Helper()

	hasher := newTestHasher(t)
	user := testUser(t, hasher, userID, email, plaintext)
	user.MFAMethod = MFATOTP
	user.TOTPSecret = totpTestSecret
	return user
}

func currentTOTPCode(t *testing.T, cfg MFAConfig) string {
	t.Helper()

	m := newTOTPManager(cfg)
	code, err := hotpCode(totpTestSecret, m.TimeStep(time.Now()), m.digits, m.algorithm)
	if err != nil {
		t.Fatalf("hotpCode failed: %v", err)
	}
	return code
}

func signinForChallenge(t *testing.T, engine *Engine, ctx context.Context, req SigninRequest) *SigninResult {
	t.Helper()

	res, err := engine.Signin(ctx, req)
	if err != nil {
		t.Fatalf("Signin failed: %v", err)
	}
	if res.Outcome != SigninMFARequired {
		t.Fatalf("expected SigninMFARequired, got %s", res.Outcome)
	}
	if res.MFAToken == "" {
		t.Fatal("expected a challenge token")
	}
	return res
}

func TestTOTPChallengeVerifies(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := signinCtx("203.0.113.1", "ua-1")
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if challenge.MFAMethod != MFATOTP {
		t.Fatalf("expected totp method, got %s", challenge.MFAMethod)
	}
	if challenge.ExpiresIn != cfg.MFA.ChallengeTTL {
		t.Fatalf("expected challenge TTL %v, got %v", cfg.MFA.ChallengeTTL, challenge.ExpiresIn)
	}

	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{
		MFAToken: challenge.MFAToken,
		Code:     currentTOTPCode(t, cfg.MFA),
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaSuccess {
		t.Fatalf("expected MfaSuccess, got %s", res.Outcome)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.SessionID == "" {
		t.Fatal("expected tokens and session id after MFA")
	}
	if res.DeviceTrustToken != "" {
		t.Fatal("expected no trust token without RememberDevice")
	}

	// The challenge is single-use.
	res, err = engine.VerifyMFA(ctx, MfaVerifyRequest{
		MFAToken: challenge.MFAToken,
		Code:     currentTOTPCode(t, cfg.MFA),
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaInvalidToken {
		t.Fatalf("expected MfaInvalidToken for consumed challenge, got %s", res.Outcome)
	}
}

func TestTOTPCodeReplayRejected(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := context.Background()
	code := currentTOTPCode(t, cfg.MFA)

	first := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{MFAToken: first.MFAToken, Code: code})
	if err != nil || res.Outcome != MfaSuccess {
		t.Fatalf("expected first verification to succeed, res=%+v err=%v", res, err)
	}

	second := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	res, err = engine.VerifyMFA(ctx, MfaVerifyRequest{MFAToken: second.MFAToken, Code: code})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaCodeAlreadyUsed {
		t.Fatalf("expected MfaCodeAlreadyUsed on replay, got %s", res.Outcome)
	}
	if res.RemainingAttempts != cfg.MFA.MaxAttempts-1 {
		t.Fatalf("expected replay to consume an attempt, remaining=%d", res.RemainingAttempts)
	}
	if got := engine.MetricsSnapshot().Counters[MetricMFAReplayAttempt]; got != 1 {
		t.Fatalf("expected one replay metric, got %d", got)
	}
}

func TestMFAWrongCodesExhaustChallenge(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := context.Background()
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})

	// Seven digits can never match a six-digit code, so these attempts are
	// deterministically wrong.
	for i := 1; i <= cfg.MFA.MaxAttempts; i++ {
		res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{MFAToken: challenge.MFAToken, Code: "0000000"})
		if err != nil {
			t.Fatalf("VerifyMFA %d failed: %v", i, err)
		}
		if res.Outcome != MfaInvalidCode {
			t.Fatalf("attempt %d: expected MfaInvalidCode, got %s", i, res.Outcome)
		}
		if res.RemainingAttempts != cfg.MFA.MaxAttempts-i {
			t.Fatalf("attempt %d: expected %d remaining, got %d", i, cfg.MFA.MaxAttempts-i, res.RemainingAttempts)
		}
	}

	// Even the correct code is dead once the budget is exhausted.
	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{
		MFAToken: challenge.MFAToken,
		Code:     currentTOTPCode(t, cfg.MFA),
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaExpired {
		t.Fatalf("expected MfaExpired after exhaustion, got %s", res.Outcome)
	}
	if got := engine.MetricsSnapshot().Counters[MetricMFAAttemptsExceeded]; got != 1 {
		t.Fatalf("expected one attempts_exceeded metric, got %d", got)
	}
}

func TestMFAUnknownTokenInvalid(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	res, err := engine.VerifyMFA(context.Background(), MfaVerifyRequest{MFAToken: "no-such-token", Code: "123456"})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaInvalidToken {
		t.Fatalf("expected MfaInvalidToken, got %s", res.Outcome)
	}
}

func TestMFARateLimited(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))
	limiter := &denyLimiter{allowed: false}

	engine, done := buildTestEngine(t, cfg, up, engineOptions{limit: limiter})
	defer done()

	res, err := engine.VerifyMFA(signinCtx("203.0.113.7", "ua"), MfaVerifyRequest{MFAToken: "x", Code: "123456"})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaRateLimited {
		t.Fatalf("expected MfaRateLimited, got %s", res.Outcome)
	}
	if len(limiter.keys) != 1 || limiter.keys[0] != "mfa:203.0.113.7" {
		t.Fatalf("unexpected limiter keys: %v", limiter.keys)
	}
}

func TestSMSChallengeDeliversAndVerifies(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	user := testUser(t, hasher, "u1", "alice@example.com", "correct-password-123")
	user.MFAMethod = MFASMS
	user.PhoneNumber = "+15550100"
	up := newMemUserProvider(user)
	sender := &fakeCodeSender{}

	engine, done := buildTestEngine(t, cfg, up, engineOptions{sender: sender})
	defer done()

	ctx := context.Background()
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if challenge.MFAMethod != MFASMS {
		t.Fatalf("expected sms method, got %s", challenge.MFAMethod)
	}

	code := sender.lastCode()
	if len(code) != cfg.MFA.SMSCodeDigits {
		t.Fatalf("expected %d-digit code, got %q", cfg.MFA.SMSCodeDigits, code)
	}

	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{MFAToken: challenge.MFAToken, Code: code})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaSuccess {
		t.Fatalf("expected MfaSuccess, got %s", res.Outcome)
	}
}

func TestSMSWrongCodeCounts(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	user := testUser(t, hasher, "u1", "alice@example.com", "correct-password-123")
	user.MFAMethod = MFASMS
	user.PhoneNumber = "+15550100"
	up := newMemUserProvider(user)
	sender := &fakeCodeSender{}

	engine, done := buildTestEngine(t, cfg, up, engineOptions{sender: sender})
	defer done()

	ctx := context.Background()
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})

	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{MFAToken: challenge.MFAToken, Code: "0000000"})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaInvalidCode {
		t.Fatalf("expected MfaInvalidCode, got %s", res.Outcome)
	}
	if res.RemainingAttempts != cfg.MFA.MaxAttempts-1 {
		t.Fatalf("expected %d remaining, got %d", cfg.MFA.MaxAttempts-1, res.RemainingAttempts)
	}
}

func TestTOTPPreferredOverSMS(t *testing.T) {
	cfg := engineTestConfig()
	user := totpUser(t, "u1", "alice@example.com", "correct-password-123")
	user.MFAMethod = MFASMS
	user.PhoneNumber = "+15550100"
	up := newMemUserProvider(user)
	sender := &fakeCodeSender{}

	engine, done := buildTestEngine(t, cfg, up, engineOptions{sender: sender})
	defer done()

	challenge := signinForChallenge(t, engine, context.Background(), SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if challenge.MFAMethod != MFATOTP {
		t.Fatalf("expected totp to win when both factors exist, got %s", challenge.MFAMethod)
	}
	if sender.sendCall != 0 {
		t.Fatalf("expected no SMS delivery, got %d sends", sender.sendCall)
	}
}

func TestSMSDeliveryFailureAbortsChallenge(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	user := testUser(t, hasher, "u1", "alice@example.com", "correct-password-123")
	user.MFAMethod = MFASMS
	user.PhoneNumber = "+15550100"
	up := newMemUserProvider(user)

	// No code sender configured at all.
	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	_, err := engine.Signin(context.Background(), SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})
	if err == nil {
		t.Fatal("expected delivery error without a code sender")
	}
}

func TestRememberDeviceIssuesTrustToken(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := signinCtx("203.0.113.1", "ua-1")
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:             "alice@example.com",
		Password:          "correct-password-123",
		DeviceFingerprint: "fp-1",
	})

	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{
		MFAToken:       challenge.MFAToken,
		Code:           currentTOTPCode(t, cfg.MFA),
		RememberDevice: true,
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaSuccess {
		t.Fatalf("expected MfaSuccess, got %s", res.Outcome)
	}
	if res.DeviceTrustToken == "" {
		t.Fatal("expected a device trust token")
	}

	devices, err := engine.TrustedDevices(ctx, "u1")
	if err != nil {
		t.Fatalf("TrustedDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("expected one trusted device, got %d", len(devices))
	}
	wantExpiry := time.Now().Add(cfg.DeviceTrust.TTL)
	if diff := devices[0].ExpiresAt.Sub(wantExpiry); diff < -time.Minute || diff > time.Minute {
		t.Fatalf("unexpected trust expiry %v", devices[0].ExpiresAt)
	}
}

func TestRememberDeviceWithoutFingerprintNoToken(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider(totpUser(t, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := context.Background()
	challenge := signinForChallenge(t, engine, ctx, SigninRequest{
		Email:    "alice@example.com",
		Password: "correct-password-123",
	})

	res, err := engine.VerifyMFA(ctx, MfaVerifyRequest{
		MFAToken:       challenge.MFAToken,
		Code:           currentTOTPCode(t, cfg.MFA),
		RememberDevice: true,
	})
	if err != nil {
		t.Fatalf("VerifyMFA failed: %v", err)
	}
	if res.Outcome != MfaSuccess {
		t.Fatalf("expected MfaSuccess, got %s", res.Outcome)
	}
	if res.DeviceTrustToken != "" {
		t.Fatal("expected no trust token without a fingerprint to bind to")
	}
}
