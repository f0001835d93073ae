package monitoring

import (
	"errors"
	"time"
)

// Session status values. SUSPENDED and COMPLETED are terminal for the
// normal flow; TERMINATED is an admin-only out-of-band override.
const (
	StatusActive     = "ACTIVE"
	StatusCompleted  = "COMPLETED"
	StatusSuspended  = "SUSPENDED"
	StatusTerminated = "TERMINATED"
)

const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Suspicion weights per severity. The score is clamped to MaxSuspicion;
// a session is suspended once it reaches SuspendThreshold.
const (
	WeightHigh   = 15
	WeightMedium = 8
	WeightLow    = 3

	MaxSuspicion     = 100
	SuspendThreshold = 80
)

func SeverityWeight(severity string) (int, bool) {
	switch severity {
	case SeverityHigh:
		return WeightHigh, true
	case SeverityMedium:
		return WeightMedium, true
	case SeverityLow:
		return WeightLow, true
	}
	return 0, false
}

var ErrSessionNotFound = errors.New("monitoring: session not found")

// Violation is one incident to apply against a session.
type Violation struct {
	SessionID  string
	SubjectID  string
	Type       string
	Severity   string
	Details    string
	OccurredAt time.Time
}

// Event is a non-violation lifecycle signal. Kind "start" and "end" drive
// session state transitions; anything else is recorded for audit only.
type Event struct {
	SessionID  string
	SubjectID  string
	Kind       string
	Severity   string
	OccurredAt time.Time
}

const (
	EventStart = "start"
	EventEnd   = "end"
)

// Session is the aggregator's view of one monitoring session.
type Session struct {
	SessionID string
	SubjectID string
	ExamKind  string
	Status    string
	StartTime *time.Time
	EndTime   *time.Time

	TotalViolations     int
	HighSeverityCount   int
	MediumSeverityCount int
	LowSeverityCount    int
	SuspicionScore      int

	UpdatedAt time.Time
}

// ViolationDetail is a persisted violation returned in review listings.
type ViolationDetail struct {
	Type       string
	Severity   string
	Details    string
	OccurredAt time.Time
}

// SessionWithViolations embeds the most recent violations for dashboards.
type SessionWithViolations struct {
	Session
	RecentViolations []ViolationDetail
}

// ListFilter narrows ListSessions results. Empty fields match everything.
type ListFilter struct {
	Status    string
	SubjectID string
	Limit     int
}
