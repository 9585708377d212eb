package signet

import (
	"net/http"
	"time"
)

// AccessCookie wraps an access token in a cookie following the configured
// security policy. The cookie is host-wide; only the refresh cookie is
// path-scoped.
func (e *Engine) AccessCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Security.AccessCookieName,
		Value:    token,
		Path:     "/",
		Domain:   e.config.Security.CookieDomain,
		MaxAge:   int(e.config.JWT.AccessTTL / time.Second),
		HttpOnly: true,
		Secure:   e.config.Security.SecureCookies,
		SameSite: e.config.Security.SameSitePolicy,
	}
}

// RefreshCookie wraps a refresh token in a cookie scoped to the refresh
// endpoint path, so the long-lived token never rides on ordinary requests.
func (e *Engine) RefreshCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Security.RefreshCookieName,
		Value:    token,
		Path:     e.config.Security.RefreshCookiePath,
		Domain:   e.config.Security.CookieDomain,
		MaxAge:   int(e.config.JWT.RefreshTTL / time.Second),
		HttpOnly: true,
		Secure:   e.config.Security.SecureCookies,
		SameSite: e.config.Security.SameSitePolicy,
	}
}

// ClearAuthCookies returns expired copies of both auth cookies, for signout
// responses.
func (e *Engine) ClearAuthCookies() []*http.Cookie {
	access := e.AccessCookie("")
	access.MaxAge = -1
	refresh := e.RefreshCookie("")
	refresh.MaxAge = -1
	return []*http.Cookie{access, refresh}
}
