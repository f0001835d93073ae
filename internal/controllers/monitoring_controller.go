package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/proctor-backend/internal/models"
	"github.com/hackforge/proctor-backend/internal/monitoring"
	"github.com/hackforge/proctor-backend/internal/ws"
)

// MonitoringController serves the review dashboard: session listings with
// embedded recent violations, and the admin-only termination override.
type MonitoringController struct {
	Store monitoring.Store
	Hubs  *ws.Hubs
}

func sessionJSON(s monitoring.Session) gin.H {
	return gin.H{
		"sessionId":           s.SessionID,
		"subjectId":           s.SubjectID,
		"examKind":            s.ExamKind,
		"status":              s.Status,
		"startTime":           s.StartTime,
		"endTime":             s.EndTime,
		"totalViolations":     s.TotalViolations,
		"highSeverityCount":   s.HighSeverityCount,
		"mediumSeverityCount": s.MediumSeverityCount,
		"lowSeverityCount":    s.LowSeverityCount,
		"suspicionScore":      s.SuspicionScore,
		"updatedAt":           s.UpdatedAt,
	}
}

// ListSessions handles GET /monitoring-sessions?status=&subjectId=.
// Participants may only see their own sessions; admin and judge may query
// anyone.
func (mc *MonitoringController) ListSessions(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)

	f := monitoring.ListFilter{
		Status:    c.Query("status"),
		SubjectID: c.Query("subjectId"),
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			f.Limit = n
		}
	}

	if !IsPrivileged(user.Role) {
		if f.SubjectID != "" && f.SubjectID != user.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": "cannot query other subjects' sessions"})
			return
		}
		f.SubjectID = user.UserID
	}

	sessions, err := mc.Store.ListSessions(c.Request.Context(), f)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	data := make([]gin.H, 0, len(sessions))
	for _, sv := range sessions {
		item := sessionJSON(sv.Session)
		violations := make([]gin.H, 0, len(sv.RecentViolations))
		for _, v := range sv.RecentViolations {
			violations = append(violations, gin.H{
				"type":      v.Type,
				"severity":  v.Severity,
				"details":   v.Details,
				"timestamp": v.OccurredAt,
			})
		}
		item["recentViolations"] = violations
		data = append(data, item)
	}
	c.JSON(http.StatusOK, gin.H{"data": data, "meta": gin.H{"total": len(data)}})
}

// GetSession returns one session by ID, with the same ownership rule.
func (mc *MonitoringController) GetSession(c *gin.Context) {
	uVal, _ := c.Get("user")
	user := uVal.(models.User)
	id := c.Param("id")

	sess, err := mc.Store.GetSession(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, monitoring.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !IsPrivileged(user.Role) && sess.SubjectID != user.UserID {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, sessionJSON(*sess))
}

// Terminate is the out-of-band admin override; it is not reachable via
// the normal client flows.
func (mc *MonitoringController) Terminate(c *gin.Context) {
	id := c.Param("id")
	if err := mc.Store.Terminate(c.Request.Context(), id, time.Now()); err != nil {
		if errors.Is(err, monitoring.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	broadcastSessionUpdate(c.Request.Context(), mc.Store, mc.Hubs, id)
	c.JSON(http.StatusOK, gin.H{"message": "session terminated"})
}
