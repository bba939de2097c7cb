package identity

import (
	"errors"
	"time"

	"github.com/counselhq/identity/internal"
	"github.com/counselhq/identity/internal/rate"
	"github.com/counselhq/identity/password"
	"github.com/counselhq/identity/token"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an [Engine]. A Builder is single-use: Build returns an
// error on a second call.
type Builder struct {
	config    Config
	directory Directory
	notifier  Notifier
	redis     redis.UniversalClient
	auditSink AuditSink
	logger    *zerolog.Logger
	clock     func() time.Time

	built bool
}

// New returns a [Builder] preloaded with [DefaultConfig].
func New() *Builder {
	return &Builder{config: DefaultConfig()}
}

// WithConfig replaces the builder's configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithDirectory wires the persistence collaborator. Required.
func (b *Builder) WithDirectory(d Directory) *Builder {
	b.directory = d
	return b
}

// WithNotifier wires the one-time password delivery collaborator. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithRedis wires the Redis client backing the login rate limiter. Without
// it, rate limiting stays off regardless of configuration.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink wires the destination for audit events. Defaults to a
// discarding sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger wires a zerolog logger for operational events (notification
// failures, profile repair, hash upgrades). Defaults to a no-op logger.
func (b *Builder) WithLogger(log zerolog.Logger) *Builder {
	b.logger = &log
	return b
}

// WithClock overrides the engine's time source, for deterministic tests.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates the configuration and wiring and returns a ready engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	b.built = true

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.directory == nil {
		return nil, errors.New("directory is required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier is required")
	}

	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      b.config.Password.Memory,
		Time:        b.config.Password.Time,
		Parallelism: b.config.Password.Parallelism,
		SaltLength:  b.config.Password.SaltLength,
		KeyLength:   b.config.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	tokens, err := token.NewManager(tokenConfig(b.config, clock))
	if err != nil {
		return nil, err
	}

	log := zerolog.Nop()
	if b.logger != nil {
		log = *b.logger
	}

	e := &Engine{
		config:    b.config,
		directory: b.directory,
		hasher:    hasher,
		tokens:    tokens,
		hashPool:  internal.NewHashPool(b.config.Hashing.Workers),
		metrics:   NewMetrics(b.config.Metrics),
		log:       log,
		clock:     clock,
	}

	if b.config.RateLimit.Enabled && b.redis != nil {
		e.limiter = rate.New(b.redis, rate.Config{
			MaxAttempts: b.config.RateLimit.MaxAttempts,
			Cooldown:    b.config.RateLimit.Cooldown,
			PerIP:       b.config.RateLimit.PerIP,
			KeyPrefix:   b.config.RateLimit.KeyPrefix,
		})
	}

	e.audit = newAuditDispatcher(b.config.Audit, b.auditSink)
	e.notify = newNotifyDispatcher(b.config.Notify, b.notifier, log, e.onNotifyOutcome)

	return e, nil
}
