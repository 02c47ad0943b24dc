// Command otcauth-server serves the otcAuth account API over HTTP.
//
// Configuration comes from an optional YAML file (-config or
// OTCAUTH_CONFIG) overridden by OTCAUTH_* environment variables. Without
// OTCAUTH_REDIS_ADDR an embedded in-memory Redis is started, which is
// only suitable for local development.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	otcAuth "github.com/MrEthical07/otcAuth"
	"github.com/MrEthical07/otcAuth/internal/httpapi"
	"github.com/MrEthical07/otcAuth/internal/userstore"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", os.Getenv("OTCAUTH_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("otcauth-server: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger, err := newLogger(cfg.LogDev)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
	logger.Info("server exited properly")
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func run(cfg serverConfig, logger *zap.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---------- token store ----------
	addr := cfg.Redis.Addr
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return err
		}
		defer mr.Close()
		addr = mr.Addr()
		logger.Warn("OTCAUTH_REDIS_ADDR not set; using embedded in-memory redis", zap.String("addr", addr))
	}
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	defer rdb.Close()

	// ---------- user store ----------
	users, closeUsers, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	// ---------- engine ----------
	engineCfg := otcAuth.DefaultConfig()
	engineCfg.JWT.PrivateKey = []byte(cfg.JWT.Secret)
	engineCfg.JWT.Issuer = cfg.JWT.Issuer
	engineCfg.JWT.AccessTTL = cfg.JWT.BearerTTL
	engineCfg.Refresh.TTL = cfg.RefreshTTL
	engineCfg.OTC.TTL = cfg.OTCTTL
	engineCfg.PasswordReset.TTL = cfg.ResetTTL
	engineCfg.Cookie.Secure = cfg.Cookie.Secure
	engineCfg.Cookie.Domain = cfg.Cookie.Domain
	engineCfg.Audit.Enabled = cfg.AuditEnabled

	engine, err := otcAuth.New().
		WithConfig(engineCfg).
		WithRedis(rdb).
		WithUserStore(users).
		WithMailer(otcAuth.NewLogMailer(logger)).
		WithAuditSink(otcAuth.NewZapAuditSink(logger)).
		WithLogger(logger).
		WithMetricsEnabled(cfg.MetricsEnabled).
		WithLatencyHistograms(cfg.MetricsEnabled).
		Build()
	if err != nil {
		return err
	}
	defer engine.Close()

	// ---------- http ----------
	httpCfg := httpapi.DefaultConfig()
	httpCfg.Addr = cfg.HTTP.Addr
	httpCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	httpCfg.RatePerSecond = cfg.HTTP.RatePerSec
	httpCfg.RateBurst = cfg.HTTP.RateBurst
	httpCfg.TrustProxy = cfg.HTTP.TrustProxy
	srv := httpapi.New(engine, httpCfg, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	return srv.Shutdown(context.Background())
}

func openUserStore(ctx context.Context, cfg serverConfig, logger *zap.Logger) (otcAuth.UserStore, func(), error) {
	if cfg.Database.Driver == "memory" {
		logger.Warn("using in-memory user store (not recommended for production)")
		return otcAuth.NewMemoryUserStore(), func() {}, nil
	}

	if cfg.Database.Migrations {
		if err := userstore.Migrate(cfg.Database.Driver, cfg.Database.DSN, logger); err != nil {
			return nil, nil, err
		}
	}

	s, err := userstore.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to user database", zap.String("driver", cfg.Database.Driver))
	return s, func() { _ = s.Close() }, nil
}
