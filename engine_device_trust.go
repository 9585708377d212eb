package signet

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/signet-auth/signet/devicetrust"
	"github.com/signet-auth/signet/internal"
)

// tryDeviceTrustBypass checks whether the presented trust token lets this
// signin skip the second factor. The token must belong to the user, the
// fingerprint must hash to the recorded value, and the user agent must match
// the recorded one byte for byte. Any mismatch silently falls back to a
// regular challenge; a trust token is a convenience, never a credential.
func (e *Engine) tryDeviceTrustBypass(ctx context.Context, user *UserRecord, req SigninRequest) (bool, error) {
	if req.DeviceTrustToken == "" || req.DeviceFingerprint == "" {
		return false, nil
	}

	rec, err := e.devices.Get(ctx, req.DeviceTrustToken)
	if err != nil {
		if errors.Is(err, devicetrust.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if rec.UserID != user.UserID {
		return false, nil
	}
	presented := internal.HashFingerprint(req.DeviceFingerprint)
	if subtle.ConstantTimeCompare(presented[:], rec.FingerprintHash[:]) != 1 {
		return false, nil
	}
	if rec.UserAgent != userAgentFromContext(ctx) {
		return false, nil
	}

	// Best effort; a failed touch must not force an MFA round trip.
	_ = e.devices.Touch(ctx, rec.ID, time.Now())

	e.metricInc(MetricTrustBypass)
	return true, nil
}

// grantDeviceTrust issues a new trust token after a successful MFA
// verification with RememberDevice set. The oldest record is evicted when
// the user is already at the cap.
func (e *Engine) grantDeviceTrust(ctx context.Context, userID string, fingerprintHash [32]byte) (string, error) {
	id, err := internal.NewChallengeToken()
	if err != nil {
		return "", err
	}

	now := time.Now()
	rec := &devicetrust.Record{
		ID:              id,
		UserID:          userID,
		FingerprintHash: fingerprintHash,
		UserAgent:       userAgentFromContext(ctx),
		IPAddress:       clientIPFromContext(ctx),
		CreatedAt:       now.Unix(),
		ExpiresAt:       now.Add(e.config.DeviceTrust.TTL).Unix(),
		LastUsedAt:      now.Unix(),
	}

	evicted, err := e.devices.Save(ctx, rec, e.config.DeviceTrust.TTL, e.config.DeviceTrust.MaxPerUser)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	for range evicted {
		e.metricInc(MetricDeviceRevoked)
	}
	if len(evicted) > 0 {
		e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, "", nil, reasonMetadata(reasonLimitExceeded))
	}

	e.metricInc(MetricDeviceRemembered)
	e.emitAudit(ctx, auditEventDeviceRemembered, true, userID, "", nil, nil)

	return id, nil
}

// TrustedDevices lists the user's live trusted devices, oldest first. The
// trust tokens themselves are not returned.
func (e *Engine) TrustedDevices(ctx context.Context, userID string) ([]TrustedDeviceInfo, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	records, err := e.devices.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	out := make([]TrustedDeviceInfo, 0, len(records))
	for _, rec := range records {
		out = append(out, TrustedDeviceInfo{
			ID:         rec.ID,
			UserAgent:  rec.UserAgent,
			IPAddress:  rec.IPAddress,
			CreatedAt:  time.Unix(rec.CreatedAt, 0),
			ExpiresAt:  time.Unix(rec.ExpiresAt, 0),
			LastUsedAt: time.Unix(rec.LastUsedAt, 0),
		})
	}
	return out, nil
}

// RevokeDevice removes one trusted device. Revoking an unknown device, or
// one belonging to another user, is a silent no-op.
func (e *Engine) RevokeDevice(ctx context.Context, userID, deviceID string) error {
	if err := e.checkReady(); err != nil {
		return err
	}

	rec, err := e.devices.Get(ctx, deviceID)
	if err != nil {
		if errors.Is(err, devicetrust.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if rec.UserID != userID {
		return nil
	}

	if err := e.devices.Revoke(ctx, deviceID); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricDeviceRevoked)
	e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, "", nil, reasonMetadata(reasonUserRevoked))
	return nil
}

// RevokeAllDevices removes every trusted device for a user, forcing MFA on
// all future signins.
func (e *Engine) RevokeAllDevices(ctx context.Context, userID string) (int, error) {
	return e.revokeAllDevices(ctx, userID, reasonUserRevokedAll)
}

// AdminRevokeDevices is the operator-initiated variant of [RevokeAllDevices];
// the audit trail records the admin reason.
func (e *Engine) AdminRevokeDevices(ctx context.Context, userID string) (int, error) {
	return e.revokeAllDevices(ctx, userID, reasonAdminRevoked)
}

func (e *Engine) revokeAllDevices(ctx context.Context, userID, reason string) (int, error) {
	if err := e.checkReady(); err != nil {
		return 0, err
	}

	revoked, err := e.devices.RevokeAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	for range revoked {
		e.metricInc(MetricDeviceRevoked)
	}
	if len(revoked) > 0 {
		e.emitAudit(ctx, auditEventDeviceRevoked, true, userID, "", nil, reasonMetadata(reason))
	}
	return len(revoked), nil
}
