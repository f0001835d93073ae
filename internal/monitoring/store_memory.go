package monitoring

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memoryStore keeps the aggregator state in process memory. It backs the
// handler tests and works for single-instance deployments without a
// database; the suspension contract matches GormStore.
type memoryStore struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	violations map[string][]ViolationDetail
	events     []Event
}

func NewMemoryStore() Store {
	return &memoryStore{
		sessions:   make(map[string]*Session),
		violations: make(map[string][]ViolationDetail),
	}
}

func (s *memoryStore) getOrCreate(sessionID, subjectID string) *Session {
	sess, ok := s.sessions[sessionID]
	if !ok {
		sess = &Session{
			SessionID: sessionID,
			SubjectID: subjectID,
			Status:    StatusActive,
		}
		s.sessions[sessionID] = sess
	}
	return sess
}

func (s *memoryStore) ApplyViolations(_ context.Context, batch []Violation) (int, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	persisted := 0
	touched := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))

	for _, v := range batch {
		weight, ok := SeverityWeight(v.Severity)
		if !ok {
			return persisted, nil, errors.New("monitoring: unknown severity " + v.Severity)
		}
		s.violations[v.SessionID] = append(s.violations[v.SessionID], ViolationDetail{
			Type:       v.Type,
			Severity:   v.Severity,
			Details:    v.Details,
			OccurredAt: v.OccurredAt,
		})

		sess := s.getOrCreate(v.SessionID, v.SubjectID)
		sess.TotalViolations++
		switch v.Severity {
		case SeverityHigh:
			sess.HighSeverityCount++
		case SeverityMedium:
			sess.MediumSeverityCount++
		case SeverityLow:
			sess.LowSeverityCount++
		}
		sess.SuspicionScore += weight
		if sess.SuspicionScore > MaxSuspicion {
			sess.SuspicionScore = MaxSuspicion
		}
		sess.UpdatedAt = time.Now().UTC()

		persisted++
		if _, dup := seen[v.SessionID]; !dup {
			seen[v.SessionID] = struct{}{}
			touched = append(touched, v.SessionID)
		}
	}

	var suspended []string
	for _, id := range touched {
		sess := s.sessions[id]
		if sess.Status == StatusActive && sess.SuspicionScore >= SuspendThreshold {
			sess.Status = StatusSuspended
			suspended = append(suspended, id)
		}
	}
	return persisted, suspended, nil
}

func (s *memoryStore) RecordEvent(_ context.Context, ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, ev)

	switch ev.Kind {
	case EventStart:
		sess := s.getOrCreate(ev.SessionID, ev.SubjectID)
		if sess.StartTime == nil {
			at := ev.OccurredAt.UTC()
			sess.StartTime = &at
		}
		if !terminal(sess.Status) {
			sess.Status = StatusActive
		}
		sess.UpdatedAt = time.Now().UTC()
	case EventEnd:
		sess := s.getOrCreate(ev.SessionID, ev.SubjectID)
		if sess.EndTime == nil {
			at := ev.OccurredAt.UTC()
			sess.EndTime = &at
		}
		if sess.Status != StatusSuspended && sess.Status != StatusTerminated {
			sess.Status = StatusCompleted
		}
		sess.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (s *memoryStore) GetSession(_ context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memoryStore) ListSessions(_ context.Context, f ListFilter) ([]SessionWithViolations, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	out := make([]SessionWithViolations, 0)
	for _, sess := range s.sessions {
		if f.Status != "" && sess.Status != f.Status {
			continue
		}
		if f.SubjectID != "" && sess.SubjectID != f.SubjectID {
			continue
		}
		sv := SessionWithViolations{Session: *sess}
		recs := s.violations[sess.SessionID]
		start := 0
		if len(recs) > 20 {
			start = len(recs) - 20
		}
		sv.RecentViolations = append(sv.RecentViolations, recs[start:]...)
		out = append(out, sv)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *memoryStore) Terminate(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = StatusTerminated
	if sess.EndTime == nil {
		t := at.UTC()
		sess.EndTime = &t
	}
	sess.UpdatedAt = time.Now().UTC()
	return nil
}

func terminal(status string) bool {
	switch status {
	case StatusCompleted, StatusSuspended, StatusTerminated:
		return true
	}
	return false
}
