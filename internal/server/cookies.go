package server

import (
	"net/http"
	"time"

	"github.com/desertthunder/save-a-playlist/internal/shared"
)

// Cookies writes and reads the session and OAuth-state cookies.
//
// Both are HttpOnly, SameSite=Lax and scoped to "/". Secure is set in production.
type Cookies struct {
	SessionName string
	StateName   string
	SessionTTL  time.Duration
	StateTTL    time.Duration
	Secure      bool
}

// NewCookies builds cookie settings from application configuration.
func NewCookies(cfg *shared.Config) Cookies {
	return Cookies{
		SessionName: cfg.Session.CookieName,
		StateName:   cfg.Session.StateCookieName,
		SessionTTL:  cfg.Session.TTL,
		StateTTL:    cfg.Session.StateTTL,
		Secure:      cfg.IsProduction(),
	}
}

func (c Cookies) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if maxAge <= 0 {
		maxAge = -1 // emitted as Max-Age=0
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// SetSession stores a session token.
func (c Cookies) SetSession(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.SessionName, token, c.SessionTTL))
}

// ClearSession expires the session cookie.
func (c Cookies) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(c.SessionName, "", 0))
}

// SetState stores a signed OAuth-state token.
func (c Cookies) SetState(w http.ResponseWriter, token string) {
	http.SetCookie(w, c.cookie(c.StateName, token, c.StateTTL))
}

// ClearState expires the OAuth-state cookie.
func (c Cookies) ClearState(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(c.StateName, "", 0))
}

// Session returns the session cookie value, or "".
func (c Cookies) Session(r *http.Request) string {
	return value(r, c.SessionName)
}

// State returns the OAuth-state cookie value, or "".
func (c Cookies) State(r *http.Request) string {
	return value(r, c.StateName)
}

func value(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
