package signet

import (
	"context"
	"errors"
	"testing"
)

func TestChangePasswordRejectsWrongCurrent(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	err := engine.ChangePassword(context.Background(), "u1", "wrong-password-00", "brand-new-password-456")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if up.updateHashCalls != 0 {
		t.Fatalf("expected no hash update, got %d calls", up.updateHashCalls)
	}
	if got := engine.MetricsSnapshot().Counters[MetricPasswordChangeFailure]; got != 1 {
		t.Fatalf("expected one failure metric, got %d", got)
	}
}

func TestChangePasswordRejectsReuse(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	err := engine.ChangePassword(context.Background(), "u1", "correct-password-123", "correct-password-123")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestChangePasswordRotatesAndKillsSessions(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := context.Background()
	res := signinSuccess(t, engine, ctx, "alice@example.com", "correct-password-123")

	if err := engine.ChangePassword(ctx, "u1", "correct-password-123", "brand-new-password-456"); err != nil {
		t.Fatalf("ChangePassword failed: %v", err)
	}

	// Every pre-rotation session is gone.
	if _, err := engine.Refresh(ctx, res.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after rotation, got %v", err)
	}

	// Old password fails, new one signs in.
	old, err := engine.Signin(ctx, SigninRequest{Email: "alice@example.com", Password: "correct-password-123"})
	if err != nil {
		t.Fatalf("Signin failed: %v", err)
	}
	if old.Outcome != SigninInvalidCredentials {
		t.Fatalf("expected old password to fail, got %s", old.Outcome)
	}
	signinSuccess(t, engine, ctx, "alice@example.com", "brand-new-password-456")

	if got := engine.MetricsSnapshot().Counters[MetricPasswordChangeSuccess]; got != 1 {
		t.Fatalf("expected one success metric, got %d", got)
	}
}

func TestResetPasswordRejectsSamePassword(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	err := engine.ResetPassword(context.Background(), "u1", "correct-password-123")
	if !errors.Is(err, ErrPasswordReuse) {
		t.Fatalf("expected ErrPasswordReuse, got %v", err)
	}
}

func TestResetPasswordClearsLockout(t *testing.T) {
	cfg := engineTestConfig()
	hasher := newTestHasher(t)
	up := newMemUserProvider(testUser(t, hasher, "u1", "alice@example.com", "correct-password-123"))

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if _, err := engine.Signin(ctx, SigninRequest{Email: "alice@example.com", Password: "wrong-password-00"}); err != nil {
			t.Fatalf("Signin failed: %v", err)
		}
	}

	if err := engine.ResetPassword(ctx, "u1", "brand-new-password-456"); err != nil {
		t.Fatalf("ResetPassword failed: %v", err)
	}

	// The lock is gone; the new password works immediately.
	signinSuccess(t, engine, ctx, "alice@example.com", "brand-new-password-456")

	if got := engine.MetricsSnapshot().Counters[MetricAccountUnlocked]; got != 1 {
		t.Fatalf("expected one account_unlocked metric, got %d", got)
	}
}

func TestResetPasswordUnknownUser(t *testing.T) {
	cfg := engineTestConfig()
	up := newMemUserProvider()

	engine, done := buildTestEngine(t, cfg, up, engineOptions{})
	defer done()

	if err := engine.ResetPassword(context.Background(), "ghost", "brand-new-password-456"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
