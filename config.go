package otcAuth

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrEthical07/otcAuth/internal"
)

// Config is the complete engine configuration. Start from [DefaultConfig]
// and override what differs.
type Config struct {
	JWT           JWTConfig
	Refresh       RefreshConfig
	OTC           OTCConfig
	PasswordReset PasswordResetConfig
	Password      PasswordConfig
	RateLimit     RateLimitConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Cookie        CookieConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig controls access token issuance.
type JWTConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	// PrivateKey is the HS256 server secret, or the Ed25519 private key.
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
}

/*
====================================
SESSION CONFIG
====================================
*/

// RefreshConfig controls refresh credentials.
type RefreshConfig struct {
	TTL             time.Duration
	CredentialBytes int
}

// OTCConfig controls one-time codes.
type OTCConfig struct {
	TTL time.Duration
	// MaxIssuePerUser caps codes mailed to one user per IssueWindow. Zero disables the cap.
	MaxIssuePerUser int
	IssueWindow     time.Duration
}

// PasswordResetConfig controls password reset tokens and their throttles.
type PasswordResetConfig struct {
	Enabled                  bool
	TTL                      time.Duration
	MaxAttempts              int
	Window                   time.Duration
	EnableIPThrottle         bool
	EnableIdentifierThrottle bool
}

// CookieConfig controls the session cookies written by the middleware.
type CookieConfig struct {
	Secure   bool
	Domain   string
	SameSite http.SameSite
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id parameters.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool
}

/*
====================================
SECURITY CONFIG
====================================
*/

// RateLimitConfig holds the Redis-backed throttles. They are only active
// when the engine is built with a Redis client.
type RateLimitConfig struct {
	EnableIPThrottle  bool
	MaxLoginAttempts  int
	LoginCooldown     time.Duration
	MaxRedeemAttempts int
	RedeemWindow      time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns the production defaults: 600s access tokens, 8h
// refresh credentials and 600s one-time codes. JWT.PrivateKey must still be set.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL:     600 * time.Second,
			SigningMethod: "hs256",
		},
		Refresh: RefreshConfig{
			TTL:             28800 * time.Second,
			CredentialBytes: internal.RefreshCredentialBytes,
		},
		OTC: OTCConfig{
			TTL:             600 * time.Second,
			MaxIssuePerUser: 10,
			IssueWindow:     time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			Enabled:                  true,
			TTL:                      600 * time.Second,
			MaxAttempts:              5,
			Window:                   15 * time.Minute,
			EnableIPThrottle:         true,
			EnableIdentifierThrottle: true,
		},
		Password: PasswordConfig{
			Memory:         65536,
			Time:           3,
			Parallelism:    2,
			SaltLength:     16,
			KeyLength:      32,
			UpgradeOnLogin: true,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle:  true,
			MaxLoginAttempts:  5,
			LoginCooldown:     15 * time.Minute,
			MaxRedeemAttempts: 10,
			RedeemWindow:      10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
		Cookie: CookieConfig{
			Secure:   true,
			SameSite: http.SameSiteLaxMode,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	switch c.JWT.SigningMethod {
	case "hs256":
		if len(c.JWT.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 32 bytes")
		}
	case "ed25519":
		if len(c.JWT.PrivateKey) == 0 || len(c.JWT.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey and PublicKey")
		}
	default:
		return errors.New("unsupported JWT signing method")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.JWT.AccessTTL {
		return errors.New("Refresh TTL must exceed JWT AccessTTL")
	}
	if c.Refresh.CredentialBytes < internal.MinRefreshCredentialBytes {
		return errors.New("Refresh CredentialBytes must be >= 16")
	}

	// OTC
	if c.OTC.TTL <= 0 {
		return errors.New("OTC TTL must be > 0")
	}
	if c.OTC.MaxIssuePerUser < 0 {
		return errors.New("OTC MaxIssuePerUser must be >= 0")
	}
	if c.OTC.MaxIssuePerUser > 0 && c.OTC.IssueWindow <= 0 {
		return errors.New("OTC IssueWindow must be > 0 when MaxIssuePerUser is set")
	}

	// Password Reset
	if c.PasswordReset.Enabled {
		if c.PasswordReset.TTL <= 0 {
			return errors.New("PasswordReset TTL must be > 0")
		}
		if c.PasswordReset.MaxAttempts <= 0 {
			return errors.New("PasswordReset MaxAttempts must be > 0")
		}
		if c.PasswordReset.Window <= 0 {
			return errors.New("PasswordReset Window must be > 0")
		}
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Rate limits
	if c.RateLimit.MaxLoginAttempts <= 0 {
		return errors.New("RateLimit MaxLoginAttempts must be > 0")
	}
	if c.RateLimit.LoginCooldown <= 0 {
		return errors.New("RateLimit LoginCooldown must be > 0")
	}
	if c.RateLimit.MaxRedeemAttempts < 0 {
		return errors.New("RateLimit MaxRedeemAttempts must be >= 0")
	}
	if c.RateLimit.MaxRedeemAttempts > 0 && c.RateLimit.RedeemWindow <= 0 {
		return errors.New("RateLimit RedeemWindow must be > 0 when MaxRedeemAttempts is set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	return nil
}
