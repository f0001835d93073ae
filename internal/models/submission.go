package models

import "time"

// Submission is one answer for (subject, problem, round). Auto-submissions
// arrive via a fire-and-forget transport and may be delivered more than
// once; the unique index makes re-delivery a no-op so a graded submission
// is never overwritten.
type Submission struct {
	ID        uint   `gorm:"primaryKey"`
	SubjectID string `gorm:"uniqueIndex:uniq_subject_problem_round"`
	ProblemID uint   `gorm:"uniqueIndex:uniq_subject_problem_round"`
	Round     int    `gorm:"uniqueIndex:uniq_subject_problem_round"`
	Language  string `gorm:"size:32"`
	Payload   string
	Source    string `gorm:"size:16"` // manual | auto
	Reason    string `gorm:"size:32"` // auto-submit trigger reason, empty for manual
	Graded    bool
	Score     *int
	CreatedAt time.Time
	UpdatedAt time.Time
}
