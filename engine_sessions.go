package signet

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/signet-auth/signet/internal"
	"github.com/signet-auth/signet/session"
)

// establishSession creates a session, enforces the per-user cap by evicting
// oldest sessions first, and signs the access/refresh pair bound to it.
func (e *Engine) establishSession(ctx context.Context, user *UserRecord, hasFingerprint bool, fingerprintHash [32]byte) (*session.Session, *TokenPair, error) {
	live, err := e.sessions.ListByUser(ctx, user.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for len(live) >= e.config.Session.MaxPerUser {
		oldest := live[0]
		if err := e.sessions.Delete(ctx, oldest.SessionID); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
		live = live[1:]
		e.metricInc(MetricSessionEvicted)
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionInvalidated, true, user.UserID, oldest.SessionID, nil, reasonMetadata(reasonLimitExceeded))
	}

	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, nil, err
	}

	now := time.Now()
	sess := &session.Session{
		SessionID:   sid.String(),
		UserID:      user.UserID,
		DeviceID:    deviceIDFor(hasFingerprint, fingerprintHash),
		IPAddress:   clientIPFromContext(ctx),
		UserAgent:   userAgentFromContext(ctx),
		TokenFamily: uuid.NewString(),
		CreatedAt:   now.Unix(),
		ExpiresAt:   now.Add(e.config.Session.TTL).Unix(),
	}

	if err := e.sessions.Save(ctx, sess, e.config.Session.TTL); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	accessToken, err := e.tokens.CreateAccess(user.UserID, user.Email, user.Roles, sess.SessionID)
	if err != nil {
		return nil, nil, err
	}
	refreshToken, err := e.tokens.CreateRefresh(user.UserID, sess.SessionID, sess.TokenFamily)
	if err != nil {
		return nil, nil, err
	}

	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, auditEventSessionCreated, true, user.UserID, sess.SessionID, nil, nil)

	return sess, &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    sess.SessionID,
	}, nil
}

// deviceIDFor derives a stable device identifier from the fingerprint hash
// so repeat signins from the same device produce the same ID. Without a
// fingerprint each session gets a fresh random ID.
func deviceIDFor(hasFingerprint bool, fingerprintHash [32]byte) string {
	if hasFingerprint {
		return hex.EncodeToString(fingerprintHash[:8])
	}
	return uuid.NewString()
}

// Refresh exchanges a live refresh token for a fresh access/refresh pair,
// rotating the session's token family.
//
// Presenting a superseded refresh token destroys the session and returns
// [ErrRefreshReuse]: a replayed token means either theft or a client bug,
// and in both cases every descendant of that token must die.
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseRefresh(refreshToken)
	if err != nil {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrTokenInvalid
	}

	user, err := e.users.GetUserByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.metricInc(MetricRefreshFailure)
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user.Status != AccountActive {
		e.metricInc(MetricRefreshFailure)
		return nil, ErrAccountInactive
	}

	rotated, err := e.sessions.RotateTokenFamily(ctx, claims.SessionID, claims.TokenFamily, uuid.NewString())
	if err != nil {
		switch {
		case errors.Is(err, session.ErrTokenFamilyMismatch):
			e.metricInc(MetricRefreshReuseDetected)
			e.metricInc(MetricSessionInvalidated)
			e.emitAudit(ctx, auditEventSessionInvalidated, false, claims.Subject, claims.SessionID, ErrRefreshReuse, reasonMetadata(reasonTokenReuse))
			return nil, ErrRefreshReuse
		case errors.Is(err, session.ErrNotFound):
			e.metricInc(MetricRefreshFailure)
			return nil, ErrSessionNotFound
		default:
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	accessToken, err := e.tokens.CreateAccess(user.UserID, user.Email, user.Roles, rotated.SessionID)
	if err != nil {
		return nil, err
	}
	newRefresh, err := e.tokens.CreateRefresh(user.UserID, rotated.SessionID, rotated.TokenFamily)
	if err != nil {
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: newRefresh,
		SessionID:    rotated.SessionID,
	}, nil
}

// ValidateAccess verifies an access token signature and claims. With
// StrictValidation it additionally confirms the backing session still
// exists, turning signout into immediate revocation at the cost of a Redis
// round trip per request.
func (e *Engine) ValidateAccess(ctx context.Context, accessToken string) (*AccessInfo, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	claims, err := e.tokens.ParseAccess(accessToken)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	if e.config.Session.StrictValidation {
		if _, err := e.sessions.Get(ctx, claims.SessionID); err != nil {
			if errors.Is(err, session.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
		}
	}

	return &AccessInfo{
		UserID:    claims.Subject,
		Email:     claims.Email,
		Roles:     claims.Roles,
		SessionID: claims.SessionID,
	}, nil
}

// Signout invalidates one session. Signing out an already-dead session is
// not an error.
func (e *Engine) Signout(ctx context.Context, sessionID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSignout)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, sess.UserID, sessionID, nil, reasonMetadata(reasonUserLogout))
	return nil
}

// SignoutAll invalidates every session the user has, across all devices.
func (e *Engine) SignoutAll(ctx context.Context, userID string) (int, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}
	n, err := e.invalidateAllSessions(ctx, userID, reasonUserLogoutAll)
	if err != nil {
		return 0, err
	}
	e.metricInc(MetricSignoutAll)
	return n, nil
}

// RevokeSession lets a user kill one of their own sessions from another
// device. A session that does not exist or belongs to someone else is
// reported identically.
func (e *Engine) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if sess.UserID != userID {
		return ErrSessionNotFound
	}

	if err := e.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSessionInvalidated, true, userID, sessionID, nil, reasonMetadata(reasonUserRevoked))
	return nil
}

// AdminRevokeSessions invalidates every session for a user on behalf of an
// operator.
func (e *Engine) AdminRevokeSessions(ctx context.Context, userID string) (int, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}
	return e.invalidateAllSessions(ctx, userID, reasonAdminRevoked)
}

// Sessions lists the user's live sessions, oldest first.
func (e *Engine) Sessions(ctx context.Context, userID string) ([]SessionInfo, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	live, err := e.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]SessionInfo, 0, len(live))
	for _, sess := range live {
		out = append(out, SessionInfo{
			SessionID: sess.SessionID,
			DeviceID:  sess.DeviceID,
			IPAddress: sess.IPAddress,
			UserAgent: sess.UserAgent,
			CreatedAt: time.Unix(sess.CreatedAt, 0),
			ExpiresAt: time.Unix(sess.ExpiresAt, 0),
		})
	}
	return out, nil
}

func (e *Engine) invalidateAllSessions(ctx context.Context, userID, reason string) (int, error) {
	deleted, err := e.sessions.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for _, sess := range deleted {
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, auditEventSessionInvalidated, true, userID, sess.SessionID, nil, reasonMetadata(reason))
	}
	return len(deleted), nil
}
