package signet

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/signet-auth/signet/internal/audit"
)

// AccountStatus represents the lifecycle state of a user account. Only
// ACTIVE accounts may sign in; the specific status is disclosed only after
// the password has verified.
type AccountStatus uint8

const (
	AccountActive AccountStatus = iota
	AccountPendingVerification
	AccountSuspended
	AccountDeactivated
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "ACTIVE"
	case AccountPendingVerification:
		return "PENDING_VERIFICATION"
	case AccountSuspended:
		return "SUSPENDED"
	case AccountDeactivated:
		return "DEACTIVATED"
	default:
		return "UNKNOWN"
	}
}

// MFAMethod is the second factor configured on an account.
type MFAMethod uint8

const (
	MFANone MFAMethod = iota
	MFATOTP
	MFASMS
)

func (m MFAMethod) String() string {
	switch m {
	case MFATOTP:
		return "totp"
	case MFASMS:
		return "sms"
	default:
		return "none"
	}
}

// UserRecord is the account snapshot returned by [UserProvider]. TOTPSecret
// is the raw shared secret; PhoneNumber is consumed only by the [CodeSender]
// path and never persisted by the engine.
type UserRecord struct {
	UserID       string
	Email        string
	PasswordHash string
	Status       AccountStatus
	MFAMethod    MFAMethod
	TOTPSecret   []byte
	PhoneNumber  string
	Roles        []string
}

// UserProvider is the interface callers implement to connect the engine to
// their user database. Lookups must return [ErrUserNotFound] (possibly
// wrapped) when no account matches.
type UserProvider interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error
}

// RateLimiter gates signin and MFA-verify attempts. Keys are built by the
// engine ("ip:email" for signin, "mfa:ip" for verification). A denied
// attempt never touches lockout state.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// CodeSender delivers SMS one-time codes. Delivery is synchronous from the
// engine's perspective; a failure aborts challenge creation.
type CodeSender interface {
	SendCode(ctx context.Context, phoneNumber, code string) error
}

// SigninOutcome tags the business result of [Engine.Signin]. Infrastructure
// failures are returned as errors, never as outcomes.
type SigninOutcome uint8

const (
	SigninSuccess SigninOutcome = iota
	SigninMFARequired
	SigninInvalidCredentials
	SigninAccountLocked
	SigninAccountInactive
	SigninRateLimited
)

func (o SigninOutcome) String() string {
	switch o {
	case SigninSuccess:
		return "SUCCESS"
	case SigninMFARequired:
		return "MFA_REQUIRED"
	case SigninInvalidCredentials:
		return "INVALID_CREDENTIALS"
	case SigninAccountLocked:
		return "ACCOUNT_LOCKED"
	case SigninAccountInactive:
		return "ACCOUNT_INACTIVE"
	case SigninRateLimited:
		return "RATE_LIMITED"
	default:
		return "UNKNOWN"
	}
}

// SigninRequest carries one signin attempt. DeviceFingerprint and
// DeviceTrustToken are optional; client IP and user agent ride on the
// context via [WithClientIP] and [WithUserAgent].
type SigninRequest struct {
	Email             string
	Password          string
	DeviceFingerprint string
	DeviceTrustToken  string
}

// SigninResult is the tagged outcome of a signin attempt. Only the fields
// for the active Outcome are populated; the zero values of the rest carry
// no information.
type SigninResult struct {
	Outcome SigninOutcome

	// SigninSuccess
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string

	// SigninMFARequired
	MFAToken  string
	MFAMethod MFAMethod
	ExpiresIn time.Duration

	// SigninInvalidCredentials
	RemainingAttempts int

	// SigninAccountLocked
	LockedUntil      time.Time
	RemainingSeconds int64
	PasswordResetURL string

	// SigninAccountInactive
	Status AccountStatus
}

// MfaVerifyOutcome tags the business result of [Engine.VerifyMFA].
type MfaVerifyOutcome uint8

const (
	MfaSuccess MfaVerifyOutcome = iota
	MfaInvalidToken
	MfaExpired
	MfaInvalidCode
	MfaCodeAlreadyUsed
	MfaRateLimited
)

func (o MfaVerifyOutcome) String() string {
	switch o {
	case MfaSuccess:
		return "SUCCESS"
	case MfaInvalidToken:
		return "INVALID_TOKEN"
	case MfaExpired:
		return "EXPIRED"
	case MfaInvalidCode:
		return "INVALID_CODE"
	case MfaCodeAlreadyUsed:
		return "CODE_ALREADY_USED"
	case MfaRateLimited:
		return "RATE_LIMITED"
	default:
		return "UNKNOWN"
	}
}

// MfaVerifyRequest carries one challenge verification attempt.
type MfaVerifyRequest struct {
	MFAToken       string
	Code           string
	RememberDevice bool
}

// MfaVerifyResult is the tagged outcome of a challenge verification.
// An exhausted challenge is reported as MfaExpired, indistinguishable from
// a timed-out one.
type MfaVerifyResult struct {
	Outcome MfaVerifyOutcome

	// MfaInvalidCode / MfaCodeAlreadyUsed
	RemainingAttempts int

	// MfaSuccess
	UserID           string
	SessionID        string
	AccessToken      string
	RefreshToken     string
	DeviceTrustToken string
}

// TokenPair is returned by [Engine.Refresh]: a fresh access token plus the
// rotated refresh token that supersedes the presented one.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	SessionID    string
}

// AccessInfo is returned by [Engine.ValidateAccess].
type AccessInfo struct {
	UserID    string
	Email     string
	Roles     []string
	SessionID string
}

// SessionInfo is the introspection view of one live session.
type SessionInfo struct {
	SessionID string
	DeviceID  string
	IPAddress string
	UserAgent string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// TrustedDeviceInfo is the introspection view of one trusted device. The
// trust token itself is not disclosed.
type TrustedDeviceInfo struct {
	ID         string
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt time.Time
}

// AuditEvent is a structured security event emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events, one per
// line, to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
