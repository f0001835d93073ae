package controllers

import (
	"context"
	"errors"
	"log"

	"github.com/hackforge/proctor-backend/internal/monitoring"
	"github.com/hackforge/proctor-backend/internal/ws"
)

// broadcastSessionUpdate pushes a session's current state to the review
// dashboards and notifies the affected exam-taker.
func broadcastSessionUpdate(ctx context.Context, store monitoring.Store, hubs *ws.Hubs, sessionID string) {
	if hubs == nil {
		return
	}
	sess, err := store.GetSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, monitoring.ErrSessionNotFound) {
			log.Printf("session broadcast: %v", err)
		}
		return
	}
	if hubs.Monitoring != nil {
		hubs.Monitoring.Broadcast(ws.SessionPayload{
			SessionID:           sess.SessionID,
			SubjectID:           sess.SubjectID,
			Status:              sess.Status,
			SuspicionScore:      sess.SuspicionScore,
			TotalViolations:     sess.TotalViolations,
			HighSeverityCount:   sess.HighSeverityCount,
			MediumSeverityCount: sess.MediumSeverityCount,
			LowSeverityCount:    sess.LowSeverityCount,
			UpdatedAt:           sess.UpdatedAt,
		})
	}
	if hubs.Participant != nil && sess.Status == monitoring.StatusSuspended {
		hubs.Participant.Notify(sess.SubjectID, ws.ParticipantMessage{
			Type:           "session_suspended",
			SessionID:      sess.SessionID,
			Status:         sess.Status,
			SuspicionScore: sess.SuspicionScore,
		})
	}
}
