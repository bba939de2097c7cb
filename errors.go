package identity

import "errors"

// The error taxonomy is closed: every failure an engine method can return
// wraps exactly one of these sentinels, matched with [errors.Is]. Callers
// are expected to present each kind as a distinct message; collapsing them
// into a generic "authentication failed" loses the self-service hints the
// product depends on.
var (
	// ErrUserNotFound reports that no account exists for the supplied email.
	ErrUserNotFound = errors.New("user not found")
	// ErrWrongPassword reports a password mismatch against the stored hash.
	ErrWrongPassword = errors.New("wrong password")
	// ErrSocialOnlyAccount reports a local login against an account that has
	// no password hash yet: it was created through a federated provider and
	// must use its delivered one-time password or the original provider.
	ErrSocialOnlyAccount = errors.New("account has no local password")
	// ErrPersistenceUnavailable reports a directory read or write failure.
	// It is never converted into ErrUserNotFound.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrValidation reports missing or malformed request input.
	ErrValidation = errors.New("invalid request input")
	// ErrTokenExpired reports a session token past its hard expiry.
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenInvalid reports a session token that failed signature or
	// claims verification.
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrLoginRateLimited reports that the failed-login budget for the
	// email or client IP is exhausted.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrEngineNotReady reports use of an engine that was not built.
	ErrEngineNotReady = errors.New("engine not initialized")
)
