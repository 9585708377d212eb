package session

// Session is the persisted record of one authenticated login. A user holds a
// bounded number of live sessions; the oldest is evicted on overflow.
//
// TokenFamily scopes refresh-token rotation: a refresh token is valid only
// while its family matches the session's current family, so rotating the
// family invalidates every refresh token issued before the rotation.
type Session struct {
	SessionID   string
	UserID      string
	DeviceID    string
	IPAddress   string
	UserAgent   string
	TokenFamily string
	CreatedAt   int64
	ExpiresAt   int64
}
