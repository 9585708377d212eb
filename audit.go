package signet

import (
	"context"
	"time"
)

const (
	auditEventAuthenticationFailed    = "authentication_failed"
	auditEventAuthenticationSucceeded = "authentication_succeeded"
	auditEventAccountLocked           = "account_locked"
	auditEventAccountUnlocked         = "account_unlocked"
	auditEventMFAChallengeInitiated   = "mfa_challenge_initiated"
	auditEventMFASucceeded            = "mfa_verification_succeeded"
	auditEventMFAFailed               = "mfa_verification_failed"
	auditEventDeviceRemembered        = "device_remembered"
	auditEventDeviceRevoked           = "device_revoked"
	auditEventSessionCreated          = "session_created"
	auditEventSessionInvalidated      = "session_invalidated"
	auditEventUserLoggedIn            = "user_logged_in"
)

// Reason strings carried in event metadata. Lock, unlock, and revocation
// reasons mirror the transition that triggered the event.
const (
	reasonExcessiveFailedAttempts = "EXCESSIVE_FAILED_ATTEMPTS"
	reasonLockoutExpired          = "LOCKOUT_EXPIRED"
	reasonPasswordReset           = "PASSWORD_RESET"
	reasonLimitExceeded           = "LIMIT_EXCEEDED"
	reasonUserRevoked             = "USER_REVOKED"
	reasonUserRevokedAll          = "USER_REVOKED_ALL"
	reasonPasswordChanged         = "PASSWORD_CHANGED"
	reasonAdminRevoked            = "ADMIN_REVOKED"
	reasonTokenReuse              = "TOKEN_REUSE"
	reasonUserLogout              = "USER_LOGOUT"
	reasonUserLogoutAll           = "USER_LOGOUT_ALL"
)

// emitAudit publishes one event through the dispatcher. Publication is
// fire-and-forget: a full buffer or closed dispatcher never affects the
// authentication decision already committed to the stores.
func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if err != nil {
		event.Error = err.Error()
	}

	e.audit.Emit(ctx, event)
}

func reasonMetadata(reason string) func() map[string]string {
	return func() map[string]string {
		return map[string]string{
			"reason": reason,
		}
	}
}
