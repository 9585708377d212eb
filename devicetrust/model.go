package devicetrust

// Record is one trusted device. ID is the opaque trust token handed to the
// client; FingerprintHash is the SHA-256 of the client fingerprint, raw
// fingerprints are never stored.
type Record struct {
	ID              string
	UserID          string
	FingerprintHash [32]byte
	UserAgent       string
	IPAddress       string
	CreatedAt       int64
	ExpiresAt       int64
	LastUsedAt      int64
}
