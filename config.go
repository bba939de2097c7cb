package identity

import (
	"errors"
	"time"

	"github.com/counselhq/identity/token"
)

// Config is the full engine configuration. Zero values are not usable;
// start from [DefaultConfig] or [ProductionConfig] and override fields as
// needed. The builder deep-copies the config so later caller mutation
// cannot reach a running engine.
type Config struct {
	Token       TokenConfig
	Password    PasswordConfig
	Persistence PersistenceConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	Hashing     HashingConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

// TokenConfig controls session token signing and lifetime. SigningKey is
// supplied here explicitly; the engine never reads key material from
// ambient process state.
type TokenConfig struct {
	SigningMethod string // "hs256" (default) or "ed25519"
	SigningKey    []byte
	PublicKey     []byte // ed25519 verify key; unused for hs256

	// MaxAge is the hard expiry of every session token.
	MaxAge time.Duration
	// RenewAfter is the sliding-renewal threshold: tokens older than this
	// are transparently re-signed when presented to RenewSession.
	RenewAfter time.Duration

	Issuer string
	Leeway time.Duration
}

// PasswordConfig holds the Argon2id cost parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin re-hashes a password transparently after a successful
	// login when the stored hash used weaker parameters.
	UpgradeOnLogin bool
}

// PersistenceConfig bounds every directory call.
type PersistenceConfig struct {
	// Timeout is applied per directory operation. On expiry the engine
	// surfaces ErrPersistenceUnavailable; it never retries in the hot
	// authentication path.
	Timeout time.Duration
}

// NotifyConfig tunes the outbound one-time-password dispatcher. Dispatch is
// asynchronous and never blocks or fails a login.
type NotifyConfig struct {
	BufferSize     int
	AttemptTimeout time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
}

// RateLimitConfig tunes failed-login throttling. The limiter only runs when
// the builder is given a Redis client.
type RateLimitConfig struct {
	Enabled     bool
	MaxAttempts int
	Cooldown    time.Duration
	PerIP       bool
	KeyPrefix   string
}

// HashingConfig bounds concurrent Argon2 work.
type HashingConfig struct {
	// Workers is the maximum number of hash or verify operations running
	// at once. Additional requests wait for a free slot.
	Workers int
}

// AuditConfig tunes the audit event dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	// DropIfFull drops events instead of blocking the request path when
	// the buffer is full. Dropped events are counted.
	DropIfFull bool
}

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns a development-friendly configuration: light Argon2
// parameters, audit and metrics on, rate limiting off.
func DefaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: "hs256",
			MaxAge:        30 * 24 * time.Hour,
			RenewAfter:    24 * time.Hour,
			Issuer:        "counselhq",
		},
		Password: PasswordConfig{
			Memory:      16 * 1024,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		Persistence: PersistenceConfig{
			Timeout: 3 * time.Second,
		},
		Notify: NotifyConfig{
			BufferSize:     256,
			AttemptTimeout: 10 * time.Second,
			MaxAttempts:    3,
			RetryBackoff:   2 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:     false,
			MaxAttempts: 10,
			Cooldown:    15 * time.Minute,
		},
		Hashing: HashingConfig{
			Workers: 4,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// ProductionConfig returns [DefaultConfig] hardened for production use:
// heavier Argon2 parameters, hash upgrades on login, per-IP rate limiting
// enabled.
func ProductionConfig() Config {
	cfg := DefaultConfig()
	cfg.Password.Memory = 64 * 1024
	cfg.Password.Time = 3
	cfg.Password.Parallelism = 2
	cfg.Password.UpgradeOnLogin = true
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.PerIP = true
	cfg.Hashing.Workers = 8
	return cfg
}

func validateConfig(cfg Config) error {
	if len(cfg.Token.SigningKey) == 0 {
		return errors.New("token signing key is required")
	}
	if cfg.Token.MaxAge <= 0 {
		return errors.New("token max age must be positive")
	}
	if cfg.Token.RenewAfter <= 0 || cfg.Token.RenewAfter >= cfg.Token.MaxAge {
		return errors.New("token renewal threshold must be positive and below max age")
	}
	if cfg.Persistence.Timeout <= 0 {
		return errors.New("persistence timeout must be positive")
	}
	if cfg.Notify.BufferSize <= 0 {
		return errors.New("notify buffer size must be positive")
	}
	if cfg.Notify.MaxAttempts <= 0 {
		return errors.New("notify max attempts must be positive")
	}
	if cfg.Notify.AttemptTimeout <= 0 {
		return errors.New("notify attempt timeout must be positive")
	}
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.MaxAttempts <= 0 {
			return errors.New("rate limit max attempts must be positive")
		}
		if cfg.RateLimit.Cooldown <= 0 {
			return errors.New("rate limit cooldown must be positive")
		}
	}
	if cfg.Hashing.Workers <= 0 {
		return errors.New("hashing workers must be positive")
	}
	return nil
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.SigningKey = append([]byte(nil), cfg.Token.SigningKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	return out
}

func tokenConfig(cfg Config, clock func() time.Time) token.Config {
	method := token.MethodHS256
	if cfg.Token.SigningMethod == "ed25519" {
		method = token.MethodEd25519
	}
	return token.Config{
		SigningMethod: method,
		PrivateKey:    cfg.Token.SigningKey,
		PublicKey:     cfg.Token.PublicKey,
		MaxAge:        cfg.Token.MaxAge,
		RenewAfter:    cfg.Token.RenewAfter,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
		Clock:         clock,
	}
}
