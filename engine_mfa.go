package signet

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal"
)

// startMFAChallenge creates the pending challenge after a correct password
// and, for SMS accounts, delivers the one-time code. TOTP wins when both
// factors are provisioned: it needs no delivery and no shared infrastructure.
func (e *Engine) startMFAChallenge(ctx context.Context, user *UserRecord, req SigninRequest) (*SigninResult, error) {
	method := MFASMS
	if len(user.TOTPSecret) > 0 {
		method = MFATOTP
	}

	token, err := internal.NewChallengeToken()
	if err != nil {
		return nil, err
	}

	challenge := &mfaChallenge{
		UserID:    user.UserID,
		Method:    method,
		ExpiresAt: time.Now().Add(e.config.MFA.ChallengeTTL).Unix(),
	}
	if req.DeviceFingerprint != "" {
		challenge.HasFingerprint = true
		challenge.FingerprintHash = internal.HashFingerprint(req.DeviceFingerprint)
	}

	if method == MFASMS {
		if e.codeSender == nil || user.PhoneNumber == "" {
			return nil, fmt.Errorf("%w: no sms delivery configured", ErrCodeDeliveryFailed)
		}
		code, err := internal.NewOTP(e.config.MFA.SMSCodeDigits)
		if err != nil {
			return nil, err
		}
		challenge.HasCode = true
		challenge.CodeHash = internal.HashCode(code)

		if err := e.codeSender.SendCode(ctx, user.PhoneNumber, code); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCodeDeliveryFailed, err)
		}
	}

	if err := e.challenges.Save(ctx, token, challenge, e.config.MFA.ChallengeTTL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricSigninMFARequired)
	methodName := method.String()
	e.emitAudit(ctx, auditEventMFAChallengeInitiated, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"method": methodName}
	})

	return &SigninResult{
		Outcome:   SigninMFARequired,
		MFAToken:  token,
		MFAMethod: method,
		ExpiresIn: e.config.MFA.ChallengeTTL,
	}, nil
}

// VerifyMFA resolves a pending challenge. Wrong codes consume attempts; an
// exhausted or timed-out challenge is dead and the signin must restart from
// the password. An accepted TOTP code is recorded as used so it cannot
// authenticate twice inside its validity window.
func (e *Engine) VerifyMFA(ctx context.Context, req MfaVerifyRequest) (*MfaVerifyResult, error) {
	if err := e.checkReady(); err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		allowed, err := e.rateLimiter.Allow(ctx, "mfa:"+clientIPFromContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRateLimiterUnavailable, err)
		}
		if !allowed {
			return &MfaVerifyResult{Outcome: MfaRateLimited}, nil
		}
	}

	challenge, err := e.challenges.Get(ctx, req.MFAToken)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	if int(challenge.Attempts) >= e.config.MFA.MaxAttempts {
		return &MfaVerifyResult{Outcome: MfaExpired}, nil
	}

	user, err := e.users.GetUserByID(ctx, challenge.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			_ = e.challenges.Delete(ctx, req.MFAToken)
			return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
		}
		return nil, fmt.Errorf("user lookup: %w", err)
	}
	if user.Status != AccountActive {
		_ = e.challenges.Delete(ctx, req.MFAToken)
		return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
	}

	switch challenge.Method {
	case MFATOTP:
		return e.verifyTOTPChallenge(ctx, &user, challenge, req)
	case MFASMS:
		return e.verifySMSChallenge(ctx, &user, challenge, req)
	default:
		_ = e.challenges.Delete(ctx, req.MFAToken)
		return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
	}
}

func (e *Engine) verifyTOTPChallenge(ctx context.Context, user *UserRecord, challenge *mfaChallenge, req MfaVerifyRequest) (*MfaVerifyResult, error) {
	valid, matchedStep, err := e.totp.VerifyCode(user.TOTPSecret, req.Code, time.Now())
	if err != nil {
		return nil, err
	}
	if !valid {
		return e.mfaFailure(ctx, user.UserID, req.MFAToken, MfaInvalidCode)
	}

	// The code is correct; now claim it. SET NX arbitrates concurrent
	// verifications of the same code, so a replay inside the validity window
	// loses even when it races the original.
	codeHash := internal.HashCode(req.Code)
	claimed, err := e.usedCodes.MarkUsed(ctx, user.UserID, codeHash, matchedStep, e.config.MFA.UsedCodeTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !claimed {
		e.metricInc(MetricMFAReplayAttempt)
		return e.mfaFailure(ctx, user.UserID, req.MFAToken, MfaCodeAlreadyUsed)
	}

	return e.mfaSuccess(ctx, user, challenge, req)
}

func (e *Engine) verifySMSChallenge(ctx context.Context, user *UserRecord, challenge *mfaChallenge, req MfaVerifyRequest) (*MfaVerifyResult, error) {
	if !challenge.HasCode {
		_ = e.challenges.Delete(ctx, req.MFAToken)
		return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
	}

	presented := internal.HashCode(req.Code)
	if subtle.ConstantTimeCompare(presented[:], challenge.CodeHash[:]) != 1 {
		return e.mfaFailure(ctx, user.UserID, req.MFAToken, MfaInvalidCode)
	}

	// SMS codes are single-use by construction: success deletes the
	// challenge and the code dies with it.
	return e.mfaSuccess(ctx, user, challenge, req)
}

// mfaFailure books one consumed attempt and shapes the failure result.
func (e *Engine) mfaFailure(ctx context.Context, userID, token string, outcome MfaVerifyOutcome) (*MfaVerifyResult, error) {
	attempts, exhausted, err := e.challenges.RecordFailure(ctx, token, e.config.MFA.MaxAttempts)
	if err != nil {
		if errors.Is(err, errChallengeNotFound) {
			return &MfaVerifyResult{Outcome: MfaInvalidToken}, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	e.metricInc(MetricMFAFailure)
	if exhausted {
		e.metricInc(MetricMFAAttemptsExceeded)
	}

	outcomeName := outcome.String()
	remaining := e.config.MFA.MaxAttempts - int(attempts)
	if remaining < 0 {
		remaining = 0
	}
	e.emitAudit(ctx, auditEventMFAFailed, false, userID, "", nil, func() map[string]string {
		return map[string]string{
			"reason":    outcomeName,
			"remaining": fmt.Sprintf("%d", remaining),
		}
	})

	return &MfaVerifyResult{
		Outcome:           outcome,
		RemainingAttempts: remaining,
	}, nil
}

// mfaSuccess finishes a verified challenge: the challenge dies, device
// trust is granted if requested, and the session is established.
func (e *Engine) mfaSuccess(ctx context.Context, user *UserRecord, challenge *mfaChallenge, req MfaVerifyRequest) (*MfaVerifyResult, error) {
	if err := e.challenges.Delete(ctx, req.MFAToken); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var trustToken string
	if req.RememberDevice && challenge.HasFingerprint {
		granted, err := e.grantDeviceTrust(ctx, user.UserID, challenge.FingerprintHash)
		if err != nil {
			return nil, err
		}
		trustToken = granted
	}

	sess, pair, err := e.establishSession(ctx, user, challenge.HasFingerprint, challenge.FingerprintHash)
	if err != nil {
		return nil, err
	}

	_ = e.users.UpdateLastLogin(ctx, user.UserID, time.Now())

	e.metricInc(MetricMFASuccess)
	e.metricInc(MetricSigninSuccess)
	e.emitAudit(ctx, auditEventMFASucceeded, true, user.UserID, sess.SessionID, nil, nil)
	e.emitAudit(ctx, auditEventAuthenticationSucceeded, true, user.UserID, sess.SessionID, nil, nil)
	e.emitAudit(ctx, auditEventUserLoggedIn, true, user.UserID, sess.SessionID, nil, nil)

	return &MfaVerifyResult{
		Outcome:          MfaSuccess,
		UserID:           user.UserID,
		SessionID:        sess.SessionID,
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		DeviceTrustToken: trustToken,
	}, nil
}
