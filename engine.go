package identity

import (
	"context"
	"strings"
	"time"

	"github.com/counselhq/identity/internal"
	"github.com/counselhq/identity/internal/rate"
	"github.com/counselhq/identity/password"
	"github.com/counselhq/identity/token"
	"github.com/rs/zerolog"
)

// Engine resolves login attempts into signed session tokens. Engines are
// built once through the [Builder], treated as immutable, and safe for
// concurrent use. Each request is an independent, stateless unit of work.
type Engine struct {
	config    Config
	directory Directory
	hasher    *password.Hasher
	tokens    *token.Manager
	hashPool  *internal.HashPool
	limiter   *rate.Limiter
	audit     *auditDispatcher
	notify    *notifyDispatcher
	metrics   *Metrics
	log       zerolog.Logger
	clock     func() time.Time
}

// Close drains and stops the background dispatchers. Pending audit events
// and notification jobs are flushed before Close returns.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.notify.Close()
	e.audit.Close()
}

// MetricsSnapshot returns a point-in-time copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// NotificationsDropped reports how many one-time-password jobs were dropped
// because the outbound buffer was full.
func (e *Engine) NotificationsDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.notify.Dropped()
}

// AuditDropped reports how many audit events were dropped because the audit
// buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil {
		return
	}
	e.metrics.Inc(id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func roleForUserType(userType string) Role {
	switch userType {
	case UserTypeAdmin:
		return RoleAdmin
	case UserTypeStudent:
		return RoleStudent
	case UserTypeConsultant:
		return RoleConsultant
	default:
		return RoleUser
	}
}

// persistCtx bounds a single directory operation. On expiry the caller
// surfaces ErrPersistenceUnavailable rather than retrying.
func (e *Engine) persistCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.config.Persistence.Timeout)
}

// findUserByEmail looks up the account for a normalized email. The store
// may hold historical duplicate rows; the newest CreatedAt wins
// deterministically. found=false only when the read succeeded and returned
// no rows; a failed read is never reported as "not found".
func (e *Engine) findUserByEmail(ctx context.Context, email string) (UserRecord, bool, error) {
	opCtx, cancel := e.persistCtx(ctx)
	defer cancel()

	rows, err := e.directory.FindUsersByEmail(opCtx, email)
	if err != nil {
		return UserRecord{}, false, ErrPersistenceUnavailable
	}
	if len(rows) == 0 {
		return UserRecord{}, false, nil
	}

	newest := rows[0]
	for _, row := range rows[1:] {
		if row.CreatedAt.After(newest.CreatedAt) {
			newest = row
		}
	}
	return newest, true, nil
}

// loadProfile fetches the student profile linked to a user. A missing
// profile is not an error; it is created lazily elsewhere.
func (e *Engine) loadProfile(ctx context.Context, userID string) (*ProfileRecord, error) {
	opCtx, cancel := e.persistCtx(ctx)
	defer cancel()

	profile, err := e.directory.FindProfileByUserID(opCtx, userID)
	if err != nil {
		return nil, ErrPersistenceUnavailable
	}
	return profile, nil
}

// verifyPassword runs a hash comparison on the bounded worker pool.
func (e *Engine) verifyPassword(ctx context.Context, storedHash, supplied string) (bool, error) {
	var match bool
	var verifyErr error
	if err := e.hashPool.Do(ctx, func() {
		match, verifyErr = e.hasher.Verify(storedHash, supplied)
	}); err != nil {
		return false, err
	}
	return match, verifyErr
}

// hashPassword runs hash derivation on the bounded worker pool.
func (e *Engine) hashPassword(ctx context.Context, plaintext string) (string, error) {
	var hash string
	var hashErr error
	if err := e.hashPool.Do(ctx, func() {
		hash, hashErr = e.hasher.Hash(plaintext)
	}); err != nil {
		return "", err
	}
	return hash, hashErr
}
