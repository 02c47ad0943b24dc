package middleware

import (
	"net/http"
	"time"

	otcAuth "github.com/MrEthical07/otcAuth"
)

const (
	// BearerCookie carries the access token.
	BearerCookie = "Bearer"
	// RefreshCookie carries the opaque refresh credential.
	RefreshCookie = "RefreshToken"
)

// SetSession writes both session cookies with the engine's lifetimes.
func SetSession(w http.ResponseWriter, engine *otcAuth.Engine, access, refresh string) {
	SetBearer(w, engine, access)
	http.SetCookie(w, sessionCookie(engine.CookieConfig(), RefreshCookie, refresh, engine.RefreshTTL()))
}

// SetBearer replaces only the access token cookie.
func SetBearer(w http.ResponseWriter, engine *otcAuth.Engine, access string) {
	http.SetCookie(w, sessionCookie(engine.CookieConfig(), BearerCookie, access, engine.AccessTTL()))
}

// ClearSession expires both session cookies.
func ClearSession(w http.ResponseWriter, engine *otcAuth.Engine) {
	cfg := engine.CookieConfig()
	for _, name := range []string{BearerCookie, RefreshCookie} {
		c := sessionCookie(cfg, name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func sessionCookie(cfg otcAuth.CookieConfig, name, value string, ttl time.Duration) *http.Cookie {
	sameSite := cfg.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   cfg.Domain,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: sameSite,
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
