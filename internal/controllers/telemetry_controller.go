package controllers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/proctor-backend/internal/models"
	"github.com/hackforge/proctor-backend/internal/monitoring"
	"github.com/hackforge/proctor-backend/internal/ws"
)

// TelemetryController ingests the proctoring client's batched telemetry:
// violation batches (which drive the suspicion score) and lifecycle event
// batches (which never do).
type TelemetryController struct {
	Store monitoring.Store
	Hubs  *ws.Hubs
}

type violationBody struct {
	Type      string     `json:"type"`
	Severity  string     `json:"severity"`
	Details   string     `json:"details"`
	Timestamp *time.Time `json:"timestamp"`
}

type violationEntry struct {
	SessionID string         `json:"sessionId"`
	Violation *violationBody `json:"violation"`
}

type eventEntry struct {
	SessionID string     `json:"sessionId"`
	EventType string     `json:"eventType"`
	Severity  string     `json:"severity"`
	Timestamp *time.Time `json:"timestamp"`
}

func telemetryError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

// IngestViolations handles POST /violations/batch. A batch with any
// malformed entry is rejected wholesale; nothing from it is persisted.
func (tc *TelemetryController) IngestViolations(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var entries []violationEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		telemetryError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if len(entries) == 0 {
		telemetryError(c, http.StatusBadRequest, "EMPTY_BATCH", "batch contains no entries")
		return
	}

	batch := make([]monitoring.Violation, 0, len(entries))
	for i, e := range entries {
		if e.SessionID == "" {
			telemetryError(c, http.StatusBadRequest, "MISSING_SESSION_ID",
				fmt.Sprintf("entry %d: sessionId is required", i))
			return
		}
		if e.Violation == nil {
			telemetryError(c, http.StatusBadRequest, "MISSING_VIOLATION",
				fmt.Sprintf("entry %d: violation is required", i))
			return
		}
		if e.Violation.Type == "" {
			telemetryError(c, http.StatusBadRequest, "MISSING_TYPE",
				fmt.Sprintf("entry %d: violation.type is required", i))
			return
		}
		if _, ok := monitoring.SeverityWeight(e.Violation.Severity); !ok {
			telemetryError(c, http.StatusBadRequest, "INVALID_SEVERITY",
				fmt.Sprintf("entry %d: severity %q is not one of LOW, MEDIUM, HIGH", i, e.Violation.Severity))
			return
		}
		if e.Violation.Timestamp == nil {
			telemetryError(c, http.StatusBadRequest, "MISSING_TIMESTAMP",
				fmt.Sprintf("entry %d: violation.timestamp is required", i))
			return
		}
		batch = append(batch, monitoring.Violation{
			SessionID:  e.SessionID,
			SubjectID:  user.UserID,
			Type:       e.Violation.Type,
			Severity:   e.Violation.Severity,
			Details:    e.Violation.Details,
			OccurredAt: *e.Violation.Timestamp,
		})
	}

	persisted, suspended, err := tc.Store.ApplyViolations(c.Request.Context(), batch)
	if err != nil {
		telemetryError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
		return
	}

	for _, id := range suspended {
		broadcastSessionUpdate(c.Request.Context(), tc.Store, tc.Hubs, id)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":             true,
		"violationsPersisted": persisted,
		"suspendedSessionIds": suspended,
	})
}

// IngestEvents handles POST /events. Lifecycle events have no suspension
// side effects; "start" and "end" drive session state transitions.
func (tc *TelemetryController) IngestEvents(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	var entries []eventEntry
	if err := c.ShouldBindJSON(&entries); err != nil {
		telemetryError(c, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	if len(entries) == 0 {
		telemetryError(c, http.StatusBadRequest, "EMPTY_BATCH", "batch contains no entries")
		return
	}

	for i, e := range entries {
		if e.SessionID == "" || e.EventType == "" {
			telemetryError(c, http.StatusBadRequest, "INVALID_ENTRY",
				fmt.Sprintf("entry %d: sessionId and eventType are required", i))
			return
		}
		at := time.Now().UTC()
		if e.Timestamp != nil {
			at = *e.Timestamp
		}
		err := tc.Store.RecordEvent(c.Request.Context(), monitoring.Event{
			SessionID:  e.SessionID,
			SubjectID:  user.UserID,
			Kind:       e.EventType,
			Severity:   e.Severity,
			OccurredAt: at,
		})
		if err != nil {
			telemetryError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "eventsRecorded": len(entries)})
}
