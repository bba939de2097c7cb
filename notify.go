package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// notifyJob is one queued one-time-password delivery.
type notifyJob struct {
	Email       string
	DisplayName string
	// OneTimePassword is the plaintext secret. It exists only in this job
	// and the outbound email; it is never persisted or logged.
	OneTimePassword string
}

// notifyDispatcher is the outbound delivery worker. Enqueueing never
// blocks: when the buffer is full the job is dropped and counted, because
// a slow mailer must not hold up a login response. Each job gets a bounded
// number of attempts with its own timeout; an exhausted job is handed to
// the outcome callback as a dead letter.
type notifyDispatcher struct {
	cfg      NotifyConfig
	notifier Notifier
	log      zerolog.Logger
	outcome  func(job notifyJob, err error)

	ch        chan notifyJob
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func newNotifyDispatcher(cfg NotifyConfig, notifier Notifier, log zerolog.Logger, outcome func(notifyJob, error)) *notifyDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	d := &notifyDispatcher{
		cfg:      cfg,
		notifier: notifier,
		log:      log,
		outcome:  outcome,
		ch:       make(chan notifyJob, cfg.BufferSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

// Enqueue hands a delivery job to the worker. Fire-and-forget: the caller
// gets no delivery outcome.
func (d *notifyDispatcher) Enqueue(job notifyJob) {
	if d == nil || d.closed.Load() {
		return
	}

	select {
	case d.ch <- job:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.log.Warn().Str("email", job.Email).Msg("one-time password notification dropped: buffer full")
	}
}

func (d *notifyDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Close stops the worker after draining buffered jobs. Drained jobs get a
// single delivery attempt each so shutdown is not held up by retry backoff.
func (d *notifyDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *notifyDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case job := <-d.ch:
			d.deliver(job, d.cfg.MaxAttempts)
		case <-d.done:
			for {
				select {
				case job := <-d.ch:
					d.deliver(job, 1)
				default:
					return
				}
			}
		}
	}
}

func (d *notifyDispatcher) deliver(job notifyJob, attempts int) {
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = d.attempt(job)
		if lastErr == nil {
			if d.outcome != nil {
				d.outcome(job, nil)
			}
			return
		}

		d.log.Warn().
			Err(lastErr).
			Str("email", job.Email).
			Int("attempt", attempt).
			Msg("one-time password delivery failed")

		if attempt < attempts && !d.sleep(d.cfg.RetryBackoff) {
			break
		}
	}

	// Dead letter: recorded, never escalated to the login path.
	if d.outcome != nil {
		d.outcome(job, lastErr)
	}
}

func (d *notifyDispatcher) attempt(job notifyJob) error {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.AttemptTimeout)
	defer cancel()
	return d.notifier.SendOneTimePassword(ctx, job.Email, job.DisplayName, job.OneTimePassword)
}

// sleep waits for the backoff interval, returning false when the
// dispatcher is shutting down.
func (d *notifyDispatcher) sleep(interval time.Duration) bool {
	if interval <= 0 {
		return true
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.done:
		return false
	}
}
