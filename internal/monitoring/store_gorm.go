package monitoring

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hackforge/proctor-backend/internal/models"
)

// GormStore persists sessions and violations in Postgres. All counter
// updates ride on a single INSERT ... ON CONFLICT DO UPDATE so concurrent
// batch deliveries for the same session never lose increments.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) ApplyViolations(ctx context.Context, batch []Violation) (int, []string, error) {
	db := s.db.WithContext(ctx)
	persisted := 0
	touched := make([]string, 0, len(batch))
	seen := make(map[string]struct{}, len(batch))

	for _, v := range batch {
		weight, ok := SeverityWeight(v.Severity)
		if !ok {
			return persisted, nil, errors.New("monitoring: unknown severity " + v.Severity)
		}

		rec := models.ViolationRecord{
			SessionID:     v.SessionID,
			SubjectID:     v.SubjectID,
			ViolationType: v.Type,
			Severity:      v.Severity,
			Details:       v.Details,
			OccurredAt:    v.OccurredAt.UTC(),
		}
		if err := db.Create(&rec).Error; err != nil {
			return persisted, nil, err
		}

		counterCol := severityColumn(v.Severity)
		score := weight
		if score > MaxSuspicion {
			score = MaxSuspicion
		}
		sess := models.MonitoringSession{
			SessionID:       v.SessionID,
			SubjectID:       v.SubjectID,
			Status:          StatusActive,
			TotalViolations: 1,
			SuspicionScore:  score,
		}
		switch v.Severity {
		case SeverityHigh:
			sess.HighSeverityCount = 1
		case SeverityMedium:
			sess.MediumSeverityCount = 1
		case SeverityLow:
			sess.LowSeverityCount = 1
		}
		err := db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"total_violations": gorm.Expr("monitoring_sessions.total_violations + 1"),
				counterCol:         gorm.Expr("monitoring_sessions." + counterCol + " + 1"),
				"suspicion_score":  gorm.Expr("LEAST(monitoring_sessions.suspicion_score + ?, ?)", weight, MaxSuspicion),
				"updated_at":       time.Now().UTC(),
			}),
		}).Create(&sess).Error
		if err != nil {
			return persisted, nil, err
		}

		persisted++
		if _, dup := seen[v.SessionID]; !dup {
			seen[v.SessionID] = struct{}{}
			touched = append(touched, v.SessionID)
		}
	}

	// Flip sessions that crossed the threshold during this batch. The
	// status guard makes re-application a no-op, so only newly suspended
	// IDs are reported.
	var suspended []string
	for _, id := range touched {
		res := db.Model(&models.MonitoringSession{}).
			Where("session_id = ? AND suspicion_score >= ? AND status = ?", id, SuspendThreshold, StatusActive).
			Update("status", StatusSuspended)
		if res.Error != nil {
			return persisted, suspended, res.Error
		}
		if res.RowsAffected > 0 {
			suspended = append(suspended, id)
		}
	}
	return persisted, suspended, nil
}

func (s *GormStore) RecordEvent(ctx context.Context, ev Event) error {
	db := s.db.WithContext(ctx)

	rec := models.SessionEvent{
		SessionID:  ev.SessionID,
		SubjectID:  ev.SubjectID,
		EventType:  ev.Kind,
		Severity:   ev.Severity,
		OccurredAt: ev.OccurredAt.UTC(),
	}
	if err := db.Create(&rec).Error; err != nil {
		return err
	}

	switch ev.Kind {
	case EventStart:
		at := ev.OccurredAt.UTC()
		sess := models.MonitoringSession{
			SessionID: ev.SessionID,
			SubjectID: ev.SubjectID,
			Status:    StatusActive,
			StartTime: &at,
		}
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				// Start time is set once; terminal statuses are never resurrected.
				"start_time": gorm.Expr("COALESCE(monitoring_sessions.start_time, ?)", at),
				"status": gorm.Expr(
					"CASE WHEN monitoring_sessions.status IN (?, ?, ?) THEN monitoring_sessions.status ELSE ? END",
					StatusCompleted, StatusSuspended, StatusTerminated, StatusActive,
				),
				"updated_at": time.Now().UTC(),
			}),
		}).Create(&sess).Error
	case EventEnd:
		at := ev.OccurredAt.UTC()
		sess := models.MonitoringSession{
			SessionID: ev.SessionID,
			SubjectID: ev.SubjectID,
			Status:    StatusCompleted,
			EndTime:   &at,
		}
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "session_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"end_time": gorm.Expr("COALESCE(monitoring_sessions.end_time, ?)", at),
				"status": gorm.Expr(
					"CASE WHEN monitoring_sessions.status IN (?, ?) THEN monitoring_sessions.status ELSE ? END",
					StatusSuspended, StatusTerminated, StatusCompleted,
				),
				"updated_at": time.Now().UTC(),
			}),
		}).Create(&sess).Error
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var m models.MonitoringSession
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	sess := fromModel(m)
	return &sess, nil
}

func (s *GormStore) ListSessions(ctx context.Context, f ListFilter) ([]SessionWithViolations, error) {
	db := s.db.WithContext(ctx)
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	q := db.Model(&models.MonitoringSession{}).Order("updated_at DESC").Limit(limit)
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.SubjectID != "" {
		q = q.Where("subject_id = ?", f.SubjectID)
	}
	var rows []models.MonitoringSession
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}

	out := make([]SessionWithViolations, 0, len(rows))
	for _, m := range rows {
		var recs []models.ViolationRecord
		err := db.Where("session_id = ?", m.SessionID).
			Order("occurred_at DESC").Limit(20).Find(&recs).Error
		if err != nil {
			return nil, err
		}
		sv := SessionWithViolations{Session: fromModel(m)}
		for _, r := range recs {
			sv.RecentViolations = append(sv.RecentViolations, ViolationDetail{
				Type:       r.ViolationType,
				Severity:   r.Severity,
				Details:    r.Details,
				OccurredAt: r.OccurredAt,
			})
		}
		out = append(out, sv)
	}
	return out, nil
}

func (s *GormStore) Terminate(ctx context.Context, sessionID string, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.MonitoringSession{}).
		Where("session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":   StatusTerminated,
			"end_time": gorm.Expr("COALESCE(monitoring_sessions.end_time, ?)", at.UTC()),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func severityColumn(severity string) string {
	switch severity {
	case SeverityHigh:
		return "high_severity_count"
	case SeverityMedium:
		return "medium_severity_count"
	}
	return "low_severity_count"
}

func fromModel(m models.MonitoringSession) Session {
	return Session{
		SessionID:           m.SessionID,
		SubjectID:           m.SubjectID,
		ExamKind:            m.ExamKind,
		Status:              m.Status,
		StartTime:           m.StartTime,
		EndTime:             m.EndTime,
		TotalViolations:     m.TotalViolations,
		HighSeverityCount:   m.HighSeverityCount,
		MediumSeverityCount: m.MediumSeverityCount,
		LowSeverityCount:    m.LowSeverityCount,
		SuspicionScore:      m.SuspicionScore,
		UpdatedAt:           m.UpdatedAt,
	}
}
