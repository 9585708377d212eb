package signet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal"
)

// Signin validates one credential presentation and drives the full
// decision: rate limit, password check, lockout accounting, account status,
// device-trust bypass, MFA challenge, and finally session establishment.
//
// Every recognizable business result is a tagged [SigninResult]; an error
// means infrastructure failed and nothing can be said about the credentials.
//
// Unknown emails and wrong passwords converge on the same code path with
// the same Argon2 work and the same lockout accounting, so neither timing
// nor the response body reveals whether an account exists.
func (e *Engine) Signin(ctx context.Context, req SigninRequest) (*SigninResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricSigninLatency, time.Since(start))
	}()

	email := normalizeEmail(req.Email)
	clientIP := clientIPFromContext(ctx)

	if e.rateLimiter != nil {
		allowed, err := e.rateLimiter.Allow(ctx, clientIP+":"+email)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
		}
		if !allowed {
			e.metricInc(MetricSigninRateLimited)
			return &SigninResult{Outcome: SigninRateLimited}, nil
		}
	}

	principal := internal.HashPrincipal(email)
	now := time.Now()

	user, lookupErr := e.users.GetUserByEmail(ctx, email)
	if lookupErr != nil && !errors.Is(lookupErr, ErrUserNotFound) {
		return nil, fmt.Errorf("user lookup: %w", lookupErr)
	}

	var passwordOK bool
	if lookupErr == nil {
		ok, err := e.passwords.Verify(req.Password, user.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("password verify: %w", err)
		}
		passwordOK = ok
	} else {
		// Unknown account: burn the same Argon2 cost against a decoy hash,
		// then fall through to the shared failure path.
		e.passwords.VerifyDummy(req.Password)
	}

	if !passwordOK {
		// user.UserID is the zero value when the lookup missed, so the
		// failure path learns the identity only for real accounts.
		return e.signinFailure(ctx, principal, user.UserID, email, now)
	}

	if result, handled, err := e.signinLockGate(ctx, principal, user.UserID, now); err != nil {
		return nil, err
	} else if handled {
		return result, nil
	}

	if user.Status != AccountActive {
		e.metricInc(MetricSigninFailure)
		status := user.Status
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, user.UserID, "", nil, func() map[string]string {
			return map[string]string{"reason": "ACCOUNT_" + status.String()}
		})
		return &SigninResult{Outcome: SigninAccountInactive, Status: status}, nil
	}

	e.maybeUpgradeHash(ctx, user, req.Password)

	if user.MFAMethod != MFANone {
		bypassed, err := e.tryDeviceTrustBypass(ctx, &user, req)
		if err != nil {
			return nil, err
		}
		if !bypassed {
			return e.startMFAChallenge(ctx, &user, req)
		}
	}

	hasFingerprint := req.DeviceFingerprint != ""
	var fingerprintHash [32]byte
	if hasFingerprint {
		fingerprintHash = internal.HashFingerprint(req.DeviceFingerprint)
	}
	return e.completeSignin(ctx, &user, hasFingerprint, fingerprintHash)
}

// signinFailure is the shared wrong-password / unknown-account path. The
// lockout counter advances and the response depends only on the resulting
// lock state, never on whether the account exists. userID is empty for
// unknown accounts; the audit trail names the user when there is one, and
// a lock on a principal with no account never becomes an account event.
func (e *Engine) signinFailure(ctx context.Context, principal [32]byte, userID, email string, now time.Time) (*SigninResult, error) {
	state, crossed, err := e.lockouts.RecordFailure(
		ctx, principal, e.config.Lockout.Threshold, e.config.Lockout.LockDuration, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSigninFailure)
	attempts := state.Attempts
	e.emitAudit(ctx, auditEventAuthenticationFailed, false, userID, "", nil, func() map[string]string {
		return map[string]string{
			"email":    email,
			"attempts": fmt.Sprintf("%d", attempts),
		}
	})

	if state.lockedAt(now) {
		if crossed {
			e.metricInc(MetricAccountLocked)
			if userID != "" {
				e.emitAudit(ctx, auditEventAccountLocked, false, userID, "", nil, reasonMetadata(reasonExcessiveFailedAttempts))
			}
		}
		return e.lockedResult(state, now), nil
	}

	remaining := e.config.Lockout.Threshold - int(state.Attempts)
	if remaining < 0 {
		remaining = 0
	}
	return &SigninResult{
		Outcome:           SigninInvalidCredentials,
		RemainingAttempts: remaining,
	}, nil
}

// signinLockGate runs after a correct password. A live lock still refuses
// the signin; an expired one auto-unlocks; a clean success resets the
// failed-attempt counter.
func (e *Engine) signinLockGate(ctx context.Context, principal [32]byte, userID string, now time.Time) (*SigninResult, bool, error) {
	state, err := e.lockouts.Get(ctx, principal)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if state == nil {
		return nil, false, nil
	}

	if state.lockedAt(now) {
		e.metricInc(MetricSigninFailure)
		e.emitAudit(ctx, auditEventAuthenticationFailed, false, userID, "", nil, reasonMetadata("ACCOUNT_LOCKED"))
		return e.lockedResult(state, now), true, nil
	}

	if err := e.lockouts.Clear(ctx, principal); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if state.LockedUntil != 0 {
		e.metricInc(MetricAccountUnlocked)
		e.emitAudit(ctx, auditEventAccountUnlocked, true, userID, "", nil, reasonMetadata(reasonLockoutExpired))
	}

	return nil, false, nil
}

func (e *Engine) lockedResult(state *lockoutState, now time.Time) *SigninResult {
	lockedUntil := time.Unix(state.LockedUntil, 0)
	remaining := state.LockedUntil - now.Unix()
	if remaining < 0 {
		remaining = 0
	}
	return &SigninResult{
		Outcome:          SigninAccountLocked,
		LockedUntil:      lockedUntil,
		RemainingSeconds: remaining,
		PasswordResetURL: e.config.Lockout.PasswordResetURL,
	}
}

// maybeUpgradeHash transparently re-hashes the password when the stored
// hash carries weaker parameters than the current policy. Best effort: a
// failed upgrade never blocks a correct signin.
func (e *Engine) maybeUpgradeHash(ctx context.Context, user UserRecord, plaintext string) {
	if !e.config.Password.UpgradeOnLogin {
		return
	}
	needs, err := e.passwords.NeedsUpgrade(user.PasswordHash)
	if err != nil || !needs {
		return
	}
	newHash, err := e.passwords.Hash(plaintext)
	if err != nil {
		return
	}
	_ = e.users.UpdatePasswordHash(ctx, user.UserID, newHash)
}

// completeSignin is the shared tail of a fully authenticated signin, with
// MFA either passed, bypassed, or not configured.
func (e *Engine) completeSignin(ctx context.Context, user *UserRecord, hasFingerprint bool, fingerprintHash [32]byte) (*SigninResult, error) {
	sess, pair, err := e.establishSession(ctx, user, hasFingerprint, fingerprintHash)
	if err != nil {
		return nil, err
	}

	_ = e.users.UpdateLastLogin(ctx, user.UserID, time.Now())

	e.metricInc(MetricSigninSuccess)
	e.emitAudit(ctx, auditEventAuthenticationSucceeded, true, user.UserID, sess.SessionID, nil, nil)
	e.emitAudit(ctx, auditEventUserLoggedIn, true, user.UserID, sess.SessionID, nil, nil)

	return &SigninResult{
		Outcome:      SigninSuccess,
		UserID:       user.UserID,
		SessionID:    sess.SessionID,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}
