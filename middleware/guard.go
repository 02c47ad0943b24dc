package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	otcAuth "github.com/MrEthical07/otcAuth"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the session established by Guard.
func AuthResultFromContext(ctx context.Context) (*otcAuth.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*otcAuth.AuthResult)
	return res, ok
}

// UserIDFromContext returns the authenticated user id, or 0.
func UserIDFromContext(ctx context.Context) int64 {
	res, ok := AuthResultFromContext(ctx)
	if !ok || res == nil {
		return 0
	}
	return res.UserID
}

// Options tunes Guard.
type Options struct {
	// Public reports requests that skip authentication entirely.
	Public func(*http.Request) bool
	// OnReject renders a rejected request. The default writes a plain 401.
	OnReject func(w http.ResponseWriter, r *http.Request, err error)
}

// Guard runs the refresh rotation protocol on every request it wraps.
//
// OPTIONS requests and requests matched by Options.Public pass through
// untouched. Otherwise the Bearer and RefreshToken cookies are handed to
// Engine.Authenticate. An Authorization: Bearer header is accepted when
// the cookie is absent. A rotated session has both cookies rewritten
// before the handler runs. Both cookies are cleared only when the refresh
// credential is revoked, never on a transient store failure.
func Guard(engine *otcAuth.Engine, opts Options) func(http.Handler) http.Handler {
	reject := opts.OnReject
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request, _ error) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions || (opts.Public != nil && opts.Public(r)) {
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil {
				reject(w, r, otcAuth.ErrEngineNotReady)
				return
			}

			bearer := cookieValue(r, BearerCookie)
			if bearer == "" {
				bearer, _ = bearerToken(r.Header.Get("Authorization"))
			}
			refresh := cookieValue(r, RefreshCookie)

			res, err := engine.Authenticate(r.Context(), bearer, refresh)
			if err != nil {
				if errors.Is(err, otcAuth.ErrRefreshRevoked) {
					ClearSession(w, engine)
				}
				reject(w, r, err)
				return
			}

			if res.State == otcAuth.SessionRotated {
				SetSession(w, engine, res.AccessToken, res.RefreshToken)
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
