package rate

import "errors"

// ErrUnavailable indicates the rate-limit backend is unreachable. Callers
// must treat this as an infrastructure failure, not as a deny.
var ErrUnavailable = errors.New("rate limit backend unavailable")
