package internal

import "context"

// HashPool bounds the number of concurrent password hashing or verification
// operations. Argon2 work is CPU- and memory-bound; without a cap, a burst
// of logins could starve every other goroutine in the host process.
type HashPool struct {
	slots chan struct{}
}

// NewHashPool creates a pool allowing at most size concurrent operations.
func NewHashPool(size int) *HashPool {
	if size <= 0 {
		size = 1
	}
	return &HashPool{slots: make(chan struct{}, size)}
}

// Do runs fn after acquiring a pool slot, blocking while the pool is full.
// Acquisition respects ctx; once fn starts it always runs to completion.
func (p *HashPool) Do(ctx context.Context, fn func()) error {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-p.slots }()

	fn()
	return nil
}
