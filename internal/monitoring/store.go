package monitoring

import (
	"context"
	"time"
)

// Store is the aggregator's persistence contract. Counter mutation must be
// an atomic increment keyed by sessionId, never load-then-store, since
// batches for one session can arrive concurrently (multiple tabs, client
// retries).
type Store interface {
	// ApplyViolations persists each violation, upserts the referenced
	// sessions and bumps their counters and suspicion score atomically.
	// Sessions whose score reached the suspend threshold during this call
	// are flipped to SUSPENDED exactly once and returned.
	ApplyViolations(ctx context.Context, batch []Violation) (persisted int, suspended []string, err error)

	// RecordEvent appends a lifecycle event. Kind "start" upserts the
	// session with its start time and ACTIVE status; kind "end" sets the
	// end time and COMPLETED status. Both are idempotent and neither
	// touches violation counters.
	RecordEvent(ctx context.Context, ev Event) error

	GetSession(ctx context.Context, sessionID string) (*Session, error)
	ListSessions(ctx context.Context, f ListFilter) ([]SessionWithViolations, error)

	// Terminate is the admin-only out-of-band override.
	Terminate(ctx context.Context, sessionID string, at time.Time) error
}
