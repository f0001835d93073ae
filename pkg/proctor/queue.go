package proctor

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// eventQueue buffers violations and lifecycle events and flushes them on a
// timer. Each flush takes a snapshot of the current contents, so entries
// queued while a send is in flight wait for the next flush: no double
// send, no loss of concurrently queued entries.
//
// Delivery is best effort. 2xx consumes the batch; 4xx drops it as
// unrecoverable; 5xx and transport failures retry with doubling backoff up
// to the retry ceiling, then drop. A dropped batch is logged and the exam
// flow is never blocked.
type eventQueue struct {
	sessionID string
	transport Transport
	logger    *zerolog.Logger

	flushInterval time.Duration
	maxRetries    int
	baseDelay     time.Duration

	onSuspended func([]string)

	mu         sync.Mutex
	violations []Violation
	events     []LifecycleEvent
	offline    bool
}

func newEventQueue(opts Options) *eventQueue {
	return &eventQueue{
		sessionID:     opts.SessionID,
		transport:     opts.Transport,
		logger:        opts.Logger,
		flushInterval: opts.FlushInterval,
		maxRetries:    opts.MaxRetries,
		baseDelay:     opts.RetryBaseDelay,
		onSuspended:   opts.OnSuspended,
	}
}

func (q *eventQueue) Add(v Violation) {
	q.mu.Lock()
	q.violations = append(q.violations, v)
	q.mu.Unlock()
}

func (q *eventQueue) AddEvent(ev LifecycleEvent) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

// SetOnline gates flushing. While offline, flushes are no-ops and entries
// stay queued for the next attempt.
func (q *eventQueue) SetOnline(online bool) {
	q.mu.Lock()
	q.offline = !online
	q.mu.Unlock()
}

func (q *eventQueue) run(ctx context.Context) {
	ticker := time.NewTicker(q.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			q.Flush(ctx)
		}
	}
}

// snapshot detaches the current queue contents. Returns nils when offline
// or empty.
func (q *eventQueue) snapshot() ([]Violation, []LifecycleEvent) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.offline || (len(q.violations) == 0 && len(q.events) == 0) {
		return nil, nil
	}
	vs, evs := q.violations, q.events
	q.violations, q.events = nil, nil
	return vs, evs
}

func (q *eventQueue) Flush(ctx context.Context) {
	vs, evs := q.snapshot()
	if len(vs) > 0 {
		q.sendViolations(ctx, vs)
	}
	if len(evs) > 0 {
		q.sendEvents(ctx, evs)
	}
}

func (q *eventQueue) sendViolations(ctx context.Context, batch []Violation) {
	attempts := q.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !q.backoff(ctx, attempt) {
			return
		}
		res, err := q.transport.PostViolations(ctx, q.sessionID, batch)
		if err == nil {
			if q.onSuspended != nil && len(res.SuspendedSessionIDs) > 0 {
				q.onSuspended(res.SuspendedSessionIDs)
			}
			return
		}
		if isPermanent(err) {
			q.logger.Warn().Err(err).Int("batch", len(batch)).Msg("violation batch rejected, dropping")
			return
		}
		q.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("violation batch send failed")
	}
	q.logger.Warn().Int("batch", len(batch)).Msg("violation batch dropped after retries")
}

func (q *eventQueue) sendEvents(ctx context.Context, batch []LifecycleEvent) {
	attempts := q.maxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 && !q.backoff(ctx, attempt) {
			return
		}
		err := q.transport.PostEvents(ctx, q.sessionID, batch)
		if err == nil {
			return
		}
		if isPermanent(err) {
			q.logger.Warn().Err(err).Int("batch", len(batch)).Msg("event batch rejected, dropping")
			return
		}
		q.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("event batch send failed")
	}
	q.logger.Warn().Int("batch", len(batch)).Msg("event batch dropped after retries")
}

// backoff sleeps baseDelay * 2^(attempt-1), honoring cancellation.
func (q *eventQueue) backoff(ctx context.Context, attempt int) bool {
	delay := q.baseDelay << (attempt - 1)
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// FinalFlush is the teardown path: one fire-and-forget beacon per pending
// batch, no timer, no retry, no waiting.
func (q *eventQueue) FinalFlush() {
	q.mu.Lock()
	vs, evs := q.violations, q.events
	q.violations, q.events = nil, nil
	q.mu.Unlock()

	if len(vs) > 0 {
		q.transport.BeaconViolations(q.sessionID, vs)
	}
	if len(evs) > 0 {
		q.transport.BeaconEvents(q.sessionID, evs)
	}
}
