package rate

import "errors"

var (
	// ErrRateLimited reports an exhausted failed-login budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable reports a Redis failure. The limiter fails
	// closed on it so an outage cannot disable throttling.
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)
