package models

import "time"

// MonitoringSession holds per-exam-attempt violation accounting.
// One row per sessionId; created lazily on the first violation or
// lifecycle signal that references it.
type MonitoringSession struct {
	ID        uint   `gorm:"primaryKey"`
	SessionID string `gorm:"uniqueIndex"`
	SubjectID string `gorm:"index"`
	ExamKind  string `gorm:"size:16"` // CODING | MCQ | MIXED
	Status    string `gorm:"size:16;index"`

	StartTime *time.Time
	EndTime   *time.Time

	TotalViolations     int
	HighSeverityCount   int
	MediumSeverityCount int
	LowSeverityCount    int
	SuspicionScore      int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ViolationRecord is append-only; one row per detected incident.
// OccurredAt carries the client-supplied event time, not server receipt time.
type ViolationRecord struct {
	ID            uint   `gorm:"primaryKey"`
	SessionID     string `gorm:"index"`
	SubjectID     string `gorm:"index"`
	ViolationType string `gorm:"size:32"`
	Severity      string `gorm:"size:8"`
	Details       string
	OccurredAt    time.Time
	CreatedAt     time.Time
}

// SessionEvent records non-violation lifecycle telemetry (start/end,
// network state changes) for audit views. Append-only.
type SessionEvent struct {
	ID         uint   `gorm:"primaryKey"`
	SessionID  string `gorm:"index"`
	SubjectID  string `gorm:"index"`
	EventType  string `gorm:"size:32"`
	Severity   string `gorm:"size:8"`
	OccurredAt time.Time
	CreatedAt  time.Time
}
