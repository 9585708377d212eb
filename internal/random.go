package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SessionID is a 16-byte random session identifier, rendered as unpadded
// base64url.
type SessionID [16]byte

const challengeTokenBytes = 32

// NewSessionID returns a cryptographically random session identifier.
func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID decodes a session identifier produced by [SessionID.String].
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

// NewChallengeToken returns an unguessable opaque token for MFA challenges
// and device-trust records: 32 random bytes, base64url without padding.
func NewChallengeToken() (string, error) {
	raw := make([]byte, challengeTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewOTP returns a numeric one-time code of the given length, each digit
// drawn independently from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// HashFingerprint returns the SHA-256 of a client device fingerprint.
// Raw fingerprints are never persisted.
func HashFingerprint(fingerprint string) [32]byte {
	return sha256.Sum256([]byte(fingerprint))
}

// HashCode returns the SHA-256 of a one-time code, used both for stored SMS
// challenge codes and for used-code replay records.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// HashPrincipal returns the SHA-256 of a normalized signin identifier.
// Lockout state is keyed by this hash so that unknown identifiers traverse
// the same code path as real ones.
func HashPrincipal(identifier string) [32]byte {
	return sha256.Sum256([]byte(identifier))
}
