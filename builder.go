package otcAuth

import (
	"errors"
	"time"

	internalaudit "github.com/MrEthical07/otcAuth/internal/audit"
	"github.com/MrEthical07/otcAuth/internal/limiters"
	"github.com/MrEthical07/otcAuth/internal/rate"
	"github.com/MrEthical07/otcAuth/jwt"
	"github.com/MrEthical07/otcAuth/otc"
	"github.com/MrEthical07/otcAuth/password"
	"github.com/MrEthical07/otcAuth/store"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Builder assembles an [Engine].
//
// Builder instances are intended to be configured during initialization and
// then discarded. A Builder can build exactly once.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	tokens store.TokenStore
	users  UserStore
	mailer Mailer

	auditSink AuditSink
	logger    *zap.Logger

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig describes the withconfig operation and its observable behavior.
//
// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis describes the withredis operation and its observable behavior.
//
// WithRedis sets the client backing the token store and every rate
// limiter. Without it, rate limiting is disabled and a token store must be
// supplied through WithTokenStore.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithTokenStore overrides the Redis token store.
func (b *Builder) WithTokenStore(ts store.TokenStore) *Builder {
	b.tokens = ts
	return b
}

// WithUserStore sets the account persistence backend. It is required.
func (b *Builder) WithUserStore(us UserStore) *Builder {
	b.users = us
	return b
}

// WithMailer sets the delivery channel for one-time codes and reset
// tokens. The default logs messages instead of sending them.
func (b *Builder) WithMailer(m Mailer) *Builder {
	b.mailer = m
	return b
}

// WithAuditSink describes the withauditsink operation and its observable behavior.
//
// WithAuditSink has no effect unless Audit.Enabled is set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the structured logger. The default discards everything.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build validates the configuration, wires stores, limiters and managers,
// and starts the audit dispatcher when auditing is enabled. Callers must
// Close the returned Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil && b.tokens == nil {
		return nil, errors.New("redis client or token store required")
	}
	if b.users == nil {
		return nil, errors.New("user store required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("otcauth")

	mailer := b.mailer
	if mailer == nil {
		mailer = NewLogMailer(logger)
	}

	// -------- TOKEN STORE --------
	tokens := b.tokens
	if tokens == nil {
		tokens = store.NewRedisStore(b.redis)
	}

	engine := &Engine{
		config: cfg,
		tokens: tokens,
		users:  b.users,
		mailer: mailer,
		logger: logger,
		now:    time.Now,
	}

	// -------- LIMITERS --------
	if b.redis != nil {
		engine.rateLimiter = rate.New(b.redis, rate.Config{
			EnableIPThrottle:      cfg.RateLimit.EnableIPThrottle,
			MaxLoginAttempts:      cfg.RateLimit.MaxLoginAttempts,
			LoginCooldownDuration: cfg.RateLimit.LoginCooldown,
		})
		engine.redeemLimiter = limiters.NewRedeemLimiter(b.redis, limiters.RedeemConfig{
			MaxAttempts: cfg.RateLimit.MaxRedeemAttempts,
			Window:      cfg.RateLimit.RedeemWindow,
		})
		engine.issueLimiter = limiters.NewIssueLimiter(b.redis, limiters.IssueConfig{
			MaxPerUser: cfg.OTC.MaxIssuePerUser,
			Window:     cfg.OTC.IssueWindow,
		})
		engine.resetLimiter = limiters.NewResetLimiter(b.redis, limiters.PasswordResetConfig{
			EnableIdentifierThrottle: cfg.PasswordReset.EnableIdentifierThrottle,
			EnableIPThrottle:         cfg.PasswordReset.EnableIPThrottle,
			Window:                   cfg.PasswordReset.Window,
			MaxAttempts:              cfg.PasswordReset.MaxAttempts,
		})
	}

	// -------- AUDIT / METRICS --------
	engine.metrics = NewMetrics(cfg.Metrics)
	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop: func(ev internalaudit.Event) {
			engine.metricInc(MetricAuditDropped)
			logger.Warn("audit event dropped",
				zap.String("event_id", ev.EventID),
				zap.String("event_type", ev.EventType),
				zap.String("user_id", ev.UserID),
			)
		},
		Now: func() time.Time { return engine.now() },
	}, b.auditSink)

	// -------- PASSWORDS --------
	ph, err := password.NewArgon2(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.passwordHash = ph

	// Unknown emails are verified against this hash so login costs the same
	// whether or not the account exists.
	dummy, err := ph.Hash("otcauth-dummy-password")
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.dummyHash = dummy

	// -------- TOKENS --------
	jm, err := jwt.NewManager(jwt.Config{
		AccessTTL:     cfg.JWT.AccessTTL,
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		Issuer:        cfg.JWT.Issuer,
	})
	if err != nil {
		engine.Close()
		return nil, err
	}
	engine.jwtManager = jm

	engine.otc = otc.NewRegistry(tokens, cfg.OTC.TTL)
	engine.flowDeps = engine.buildFlowDeps()

	b.built = true

	return engine, nil
}
