package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	otcAuth "github.com/MrEthical07/otcAuth"
	"github.com/MrEthical07/otcAuth/middleware"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type outbox struct {
	mu   sync.Mutex
	sent []otcAuth.Message
}

func (o *outbox) Send(_ context.Context, msg otcAuth.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.sent = append(o.sent, msg)
	return nil
}

func (o *outbox) code(t *testing.T, kind otcAuth.MessageKind) string {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.sent) - 1; i >= 0; i-- {
		if o.sent[i].Kind == kind {
			return o.sent[i].Code
		}
	}
	t.Fatalf("no %s message sent", kind)
	return ""
}

func newTestServer(t *testing.T, mutate func(*Config)) (*Server, *outbox) {
	t.Helper()
	s, mail, _ := newTestServerWithRedis(t, mutate)
	return s, mail
}

func newTestServerWithRedis(t *testing.T, mutate func(*Config)) (*Server, *outbox, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := otcAuth.DefaultConfig()
	cfg.JWT.PrivateKey = []byte("httpapi-secret-httpapi-secret-32b")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Metrics.Enabled = true

	mail := &outbox{}
	engine, err := otcAuth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(otcAuth.NewMemoryUserStore()).
		WithMailer(mail).
		WithLogger(zaptest.NewLogger(t)).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	httpCfg := DefaultConfig()
	httpCfg.RatePerSecond = 0
	if mutate != nil {
		mutate(&httpCfg)
	}
	return New(engine, httpCfg, zaptest.NewLogger(t)), mail, mr
}

func do(t *testing.T, s *Server, method, target string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func cookies(rec *httptest.ResponseRecorder) map[string]*http.Cookie {
	out := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		out[c.Name] = c
	}
	return out
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) apiError {
	t.Helper()
	var body apiError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// signUp registers and confirms alice and returns her session cookies.
func signUp(t *testing.T, s *Server, mail *outbox) (bearer, refresh *http.Cookie) {
	t.Helper()

	rec := do(t, s, http.MethodPost, "/api/user", map[string]string{
		"name": "Alice", "email": "alice@example.com", "password": "Secret-123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPatch, "/api/otc/verify?otc="+mail.code(t, otcAuth.MessageConfirmAccount), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.JSONEq(t, `{"action":"ConfirmAccount"}`, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Secret-123",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	jar := cookies(rec)
	require.NotEmpty(t, jar[middleware.BearerCookie].Value)
	require.NotEmpty(t, jar[middleware.RefreshCookie].Value)
	require.True(t, jar[middleware.RefreshCookie].HttpOnly)
	return jar[middleware.BearerCookie], jar[middleware.RefreshCookie]
}

func TestHealthAndReady(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"ready":true}`, rec.Body.String())
}

func TestSignUpAndGetUser(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, _ := signUp(t, s, mail)

	rec := do(t, s, http.MethodGet, "/api/user", nil, bearer)
	require.Equal(t, http.StatusOK, rec.Code)

	var view userView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	require.Equal(t, "alice@example.com", view.Email)
	require.True(t, view.Confirmed)
}

func TestProtectedRouteRequiresSession(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "authentication_failure", decodeError(t, rec).Code)
}

func TestLoginBeforeConfirmation(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/user", map[string]string{
		"name": "Bob", "email": "bob@example.com", "password": "Secret-123",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "bob@example.com", "password": "Secret-123",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "account_not_confirmed", decodeError(t, rec).Code)
	require.Empty(t, rec.Result().Cookies())
}

func TestRegisterRejections(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPost, "/api/user", map[string]string{
		"name": "", "email": "not-an-email", "password": "short",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "validation_failure", body.Code)
	require.NotEmpty(t, body.Fields)

	form := map[string]string{"name": "Carol", "email": "carol@example.com", "password": "Secret-123"}
	require.Equal(t, http.StatusCreated, do(t, s, http.MethodPost, "/api/user", form).Code)
	rec = do(t, s, http.MethodPost, "/api/user", form)
	require.Equal(t, http.StatusConflict, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/user", strings.NewReader("{"))
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreflightBypassesAuth(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.AllowedOrigins = []string{"https://app.example.com"} })

	req := httptest.NewRequest(http.MethodOptions, "/api/user", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodOptions, "/api/user", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDeniesUnlistedOrigins(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, _ := signUp(t, s, mail)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	req.AddCookie(bearer)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	s, _ = newTestServer(t, func(c *Config) { c.AllowedOrigins = []string{"*"} })
	req = httptest.NewRequest(http.MethodOptions, "/api/user", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRefreshKeepsCookiesOnStoreOutage(t *testing.T) {
	s, mail, mr := newTestServerWithRedis(t, nil)
	_, refresh := signUp(t, s, mail)

	mr.SetError("ERR simulated outage")
	rec := do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Empty(t, rec.Header().Values("Set-Cookie"))

	mr.SetError("")
	rec = do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRefreshRotatesAndRejectsReplay(t *testing.T) {
	s, mail := newTestServer(t, nil)
	_, refresh := signUp(t, s, mail)

	rec := do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	jar := cookies(rec)
	require.NotEqual(t, refresh.Value, jar[middleware.RefreshCookie].Value)
	require.NotEmpty(t, jar[middleware.BearerCookie].Value)

	rec = do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Less(t, cookies(rec)[middleware.RefreshCookie].MaxAge, 0)
}

func TestGuardRotatesOnRefreshOnlyRequest(t *testing.T) {
	s, mail := newTestServer(t, nil)
	_, refresh := signUp(t, s, mail)

	rec := do(t, s, http.MethodGet, "/api/user", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code)
	jar := cookies(rec)
	require.NotEmpty(t, jar[middleware.BearerCookie].Value)
	require.NotEqual(t, refresh.Value, jar[middleware.RefreshCookie].Value)
}

func TestLogout(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, refresh := signUp(t, s, mail)

	rec := do(t, s, http.MethodPost, "/api/auth/logout", nil, bearer, refresh)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Less(t, cookies(rec)[middleware.BearerCookie].MaxAge, 0)

	rec = do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateEmailThroughCode(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, _ := signUp(t, s, mail)

	rec := do(t, s, http.MethodPatch, "/api/user", map[string]string{
		"email": "alice@new.example.com", "email_confirm": "alice@other.example.com",
	}, bearer)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/user", map[string]string{
		"email": "alice@new.example.com", "email_confirm": "alice@new.example.com",
	}, bearer)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.JSONEq(t, `{"otc_sent":true}`, rec.Body.String())

	rec = do(t, s, http.MethodPatch, "/api/otc/verify?otc="+mail.code(t, otcAuth.MessageUpdateAccount), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	fresh := cookies(rec)[middleware.BearerCookie]
	require.NotNil(t, fresh)

	rec = do(t, s, http.MethodGet, "/api/user", nil, fresh)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "alice@new.example.com")
}

func TestUpdateNameDirectly(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, _ := signUp(t, s, mail)

	rec := do(t, s, http.MethodPatch, "/api/user", map[string]string{"name": "Alicia"}, bearer)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"name":"Alicia"`)
}

func TestDeleteAccountThroughCode(t *testing.T) {
	s, mail := newTestServer(t, nil)
	bearer, refresh := signUp(t, s, mail)

	rec := do(t, s, http.MethodDelete, "/api/user", nil, bearer)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodPatch, "/api/otc/verify?otc="+mail.code(t, otcAuth.MessageDeleteAccount), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Less(t, cookies(rec)[middleware.RefreshCookie].MaxAge, 0)

	rec = do(t, s, http.MethodPost, "/api/auth/refresh", nil, refresh)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRedeemUnknownCode(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodPatch, "/api/otc/verify?otc=ZZZZZZ", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "otc_not_found", decodeError(t, rec).Code)
}

func TestPasswordReset(t *testing.T) {
	s, mail := newTestServer(t, nil)
	signUp(t, s, mail)

	rec := do(t, s, http.MethodPost, "/api/user/reset-password/request", map[string]string{"email": "nobody@example.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/user/reset-password/request", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusNoContent, rec.Code)
	token := mail.code(t, otcAuth.MessagePasswordReset)

	rec = do(t, s, http.MethodPatch, "/api/user/reset-password?token="+token, map[string]string{
		"password": "Changed-456", "password_confirm": "Changed-456",
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPatch, "/api/user/reset-password?token="+token, map[string]string{
		"password": "Changed-789", "password_confirm": "Changed-789",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "alice@example.com", "password": "Changed-456",
	})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestClientRateLimit(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) {
		c.RatePerSecond = 0.001
		c.RateBurst = 2
	})

	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/user", nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(t, s, http.MethodGet, "/api/user", nil).Code)

	rec := do(t, s, http.MethodGet, "/api/user", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limited", decodeError(t, rec).Code)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/healthz", nil).Code)
}

func TestRequestIDAndSecurityHeaders(t *testing.T) {
	s, _ := newTestServer(t, nil)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	require.NotEmpty(t, rec.Header().Get(requestIDHeader))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-123")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	require.Equal(t, "req-123", rr.Header().Get(requestIDHeader))
}

func TestRecovererReturns500(t *testing.T) {
	s, _ := newTestServer(t, nil)

	h := s.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") }))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "internal_failure", decodeError(t, rec).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s, mail := newTestServer(t, nil)
	signUp(t, s, mail)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "otcauth_")
}

func TestClientIPFromForwardedHeader(t *testing.T) {
	s, _ := newTestServer(t, func(c *Config) { c.TrustProxy = true })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	require.Equal(t, "203.0.113.7", s.clientIP(req))

	s.config.TrustProxy = false
	require.Equal(t, "192.0.2.1", s.clientIP(req))
}
