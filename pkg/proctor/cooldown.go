package proctor

import (
	"sync"
	"time"
)

// cooldownGate suppresses repeated emissions of the same violation type
// inside a fixed window. Per type, not global: NO_FACE and TAB_SWITCH cool
// down independently. No expiry sweep is needed since each key's own
// timestamp governs its own gate.
type cooldownGate struct {
	mu     sync.Mutex
	window time.Duration
	last   map[ViolationType]time.Time
}

func newCooldownGate(window time.Duration) *cooldownGate {
	return &cooldownGate{
		window: window,
		last:   make(map[ViolationType]time.Time),
	}
}

// Allow reports whether a violation of the given type may be emitted at
// now, recording now as the last accepted timestamp when it is.
func (g *cooldownGate) Allow(t ViolationType, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.last[t]; ok && now.Sub(prev) < g.window {
		return false
	}
	g.last[t] = now
	return true
}
