package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	otcAuth "github.com/MrEthical07/otcAuth"
	"github.com/MrEthical07/otcAuth/metrics/export/prometheus"
	"github.com/MrEthical07/otcAuth/middleware"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// Config controls the HTTP surface. Engine behavior is configured on the
// engine itself.
type Config struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// AllowedOrigins lists CORS origins granted credentialed access. Empty
	// denies every cross-origin caller.
	AllowedOrigins []string
	// TrustProxy takes the client IP from X-Forwarded-For.
	TrustProxy bool

	// RatePerSecond and RateBurst size the per-IP token bucket. Zero
	// disables the limiter.
	RatePerSecond float64
	RateBurst     int
}

// DefaultConfig returns the settings used by cmd/otcauth-server.
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     5 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RatePerSecond:   5,
		RateBurst:       10,
	}
}

// Server exposes an Engine over HTTP with cookie sessions.
type Server struct {
	engine  *otcAuth.Engine
	logger  *zap.Logger
	config  Config
	limiter *clientLimiter
	router  *mux.Router
	http    *http.Server
}

// New wires routes and middleware for engine.
func New(engine *otcAuth.Engine, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		engine: engine,
		logger: logger.Named("http"),
		config: cfg,
	}
	if cfg.RatePerSecond > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		s.limiter = newClientLimiter(cfg.RatePerSecond, burst)
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.recoverer)
	r.Use(securityHeaders)
	r.Use(s.requestContext)
	r.Use(s.accessLog)
	r.Use(s.cors)
	r.Use(s.rateLimit)

	// mux only runs middleware for matched routes; OPTIONS needs a route
	// of its own so cors can answer the preflight.
	r.Methods(http.MethodOptions).HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", prometheus.New(s.engine).Handler()).Methods(http.MethodGet)

	guard := middleware.Guard(s.engine, middleware.Options{OnReject: s.writeEngineError})
	protected := func(h http.HandlerFunc) http.Handler { return guard(h) }

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/user", s.handleRegister).Methods(http.MethodPost)
	api.Handle("/user", protected(s.handleGetUser)).Methods(http.MethodGet)
	api.Handle("/user", protected(s.handleUpdateUser)).Methods(http.MethodPatch)
	api.Handle("/user", protected(s.handleDeleteUser)).Methods(http.MethodDelete)
	api.HandleFunc("/user/confirm/resend", s.handleResendConfirmation).Methods(http.MethodPost)
	api.HandleFunc("/user/reset-password/request", s.handleResetRequest).Methods(http.MethodPost)
	api.HandleFunc("/user/reset-password", s.handleResetConfirm).Methods(http.MethodPatch)

	api.HandleFunc("/otc/verify", s.handleRedeem).Methods(http.MethodPatch)

	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)
	api.Handle("/auth/logout", protected(s.handleLogout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

// Handler returns the root handler, for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe blocks until the server stops. It returns nil after a
// graceful Shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.Info("listening", zap.String("addr", s.config.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.engine.Ready(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]bool{"ready": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
}
