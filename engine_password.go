package signet

import (
	"context"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal"
)

// HashPassword hashes a plaintext with the engine's Argon2id parameters.
// Intended for provisioning flows that seed [UserRecord] values before the
// first signin.
func (e *Engine) HashPassword(plaintext string) (string, error) {
	if err := e.checkReady(); err != nil {
		return "", err
	}
	return e.passwords.Hash(plaintext)
}

// ChangePassword rotates a user's password after verifying the current one.
// On success every session dies and the lockout counter is wiped: the user
// just proved control of the account, and any concurrently held session
// might be the reason they are rotating.
func (e *Engine) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	ok, err := e.passwords.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("password verify: %w", err)
	}
	if !ok {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrInvalidCredentials
	}

	if currentPassword == newPassword {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordReuse
	}

	return e.applyNewPassword(ctx, &user, newPassword, reasonPasswordReset)
}

// ResetPassword sets a new password without the current one. The caller is
// responsible for having authenticated the reset out of band (emailed reset
// link, support flow); the engine only applies the state transitions.
func (e *Engine) ResetPassword(ctx context.Context, userID, newPassword string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	stillSame, err := e.passwords.Verify(newPassword, user.PasswordHash)
	if err == nil && stillSame {
		e.metricInc(MetricPasswordChangeFailure)
		return ErrPasswordReuse
	}

	return e.applyNewPassword(ctx, &user, newPassword, reasonPasswordReset)
}

// applyNewPassword is the shared tail of change and reset: persist the new
// hash, clear lockout state, and invalidate every session.
func (e *Engine) applyNewPassword(ctx context.Context, user *UserRecord, newPassword string, unlockReason string) error {
	newHash, err := e.passwords.Hash(newPassword)
	if err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	if err := e.users.UpdatePasswordHash(ctx, user.UserID, newHash); err != nil {
		e.metricInc(MetricPasswordChangeFailure)
		return fmt.Errorf("update password hash: %w", err)
	}

	principal := internal.HashPrincipal(normalizeEmail(user.Email))
	state, err := e.lockouts.Get(ctx, principal)
	if err == nil && state != nil {
		if clearErr := e.lockouts.Clear(ctx, principal); clearErr == nil && state.lockedAt(time.Now()) {
			e.metricInc(MetricAccountUnlocked)
			e.emitAudit(ctx, auditEventAccountUnlocked, true, user.UserID, "", nil, reasonMetadata(unlockReason))
		}
	}

	// A rotated password invalidates everything derived from the old one:
	// trusted devices as well as sessions.
	if _, err := e.revokeAllDevices(ctx, user.UserID, reasonPasswordChanged); err != nil {
		return err
	}

	if _, err := e.invalidateAllSessions(ctx, user.UserID, reasonPasswordChanged); err != nil {
		return err
	}

	e.metricInc(MetricPasswordChangeSuccess)
	return nil
}
