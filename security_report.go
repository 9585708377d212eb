package signet

import (
	"context"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal"
)

// SecurityReport is a per-account snapshot for "your account security"
// pages: live sessions, trusted devices, and current lockout state.
type SecurityReport struct {
	UserID         string
	Sessions       []SessionInfo
	TrustedDevices []TrustedDeviceInfo
	Locked         bool
	LockedUntil    time.Time
	FailedAttempts int
}

// SecurityReport assembles a [SecurityReport] for the given user.
func (e *Engine) SecurityReport(ctx context.Context, userID string) (*SecurityReport, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	sessions, err := e.Sessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	devices, err := e.TrustedDevices(ctx, userID)
	if err != nil {
		return nil, err
	}

	report := &SecurityReport{
		UserID:         userID,
		Sessions:       sessions,
		TrustedDevices: devices,
	}

	state, err := e.lockouts.Get(ctx, internal.HashPrincipal(normalizeEmail(user.Email)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if state != nil {
		now := time.Now()
		report.FailedAttempts = int(state.Attempts)
		report.Locked = state.lockedAt(now)
		if state.LockedUntil != 0 {
			report.LockedUntil = time.Unix(state.LockedUntil, 0)
		}
	}

	return report, nil
}
