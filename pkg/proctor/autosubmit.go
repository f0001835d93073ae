package proctor

import (
	"sync"

	"github.com/rs/zerolog"
)

type TriggerReason string

const (
	ReasonPageUnload TriggerReason = "page_unload"
	ReasonNavigation TriggerReason = "navigation"
	ReasonTabHidden  TriggerReason = "tab_hidden"
)

// stopper lets the coordinator shut proctoring down without depending on
// the concrete Monitor.
type stopper interface {
	Stop()
}

// AutoSubmitter preserves in-progress work when the page is about to
// become unusable. At most one submission is dispatched per page
// lifetime, however many trigger events fire; delivery is a
// fire-and-forget beacon that cannot wait for a network round trip.
type AutoSubmitter struct {
	sessionID string
	round     int
	items     func() []SubmissionItem
	transport Transport
	proctor   stopper
	logger    *zerolog.Logger

	mu        sync.Mutex
	inFlight  bool
	submitted bool
}

// NewAutoSubmitter wires the coordinator. items is the unsaved-work
// provider; an empty result means there is nothing worth preserving.
func NewAutoSubmitter(sessionID string, round int, items func() []SubmissionItem, transport Transport, p stopper, logger *zerolog.Logger) *AutoSubmitter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &AutoSubmitter{
		sessionID: sessionID,
		round:     round,
		items:     items,
		transport: transport,
		proctor:   p,
		logger:    logger,
	}
}

// Trigger handles one page-lifecycle signal. It reports whether a
// submission was dispatched. Once a dispatch has apparently succeeded
// (beacon enqueued), later triggers are no-ops.
func (a *AutoSubmitter) Trigger(reason TriggerReason) bool {
	a.mu.Lock()
	if a.inFlight || a.submitted {
		a.mu.Unlock()
		return false
	}
	items := a.items()
	if len(items) == 0 {
		a.mu.Unlock()
		return false
	}
	a.inFlight = true
	a.mu.Unlock()

	a.transport.BeaconSubmission(a.sessionID, AutoSubmission{
		Items:  items,
		Reason: string(reason),
		Round:  a.round,
	})
	a.logger.Info().Str("reason", string(reason)).Int("items", len(items)).Msg("auto-submit dispatched")

	a.mu.Lock()
	a.inFlight = false
	a.submitted = true
	a.mu.Unlock()

	// Exam monitoring must not outlive the exam page.
	if a.proctor != nil {
		a.proctor.Stop()
	}
	return true
}
