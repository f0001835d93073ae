package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/proctor-backend/internal/models"
	"github.com/hackforge/proctor-backend/internal/monitoring"
)

func authAs(user models.User) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user", user)
		c.Next()
	}
}

func participant() models.User {
	return models.User{UserID: "subj-1", Role: "participant", Active: true}
}

func newTelemetryRouter(store monitoring.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	tc := &TelemetryController{Store: store}
	r.POST("/violations/batch", authAs(participant()), tc.IngestViolations)
	r.POST("/events", authAs(participant()), tc.IngestEvents)
	return r
}

func postJSON(t *testing.T, r *gin.Engine, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func violationEntryJSON(session, vtype, severity string) map[string]any {
	return map[string]any{
		"sessionId": session,
		"violation": map[string]any{
			"type":      vtype,
			"severity":  severity,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}
}

func TestIngestViolationsPersistsBatch(t *testing.T) {
	store := monitoring.NewMemoryStore()
	r := newTelemetryRouter(store)

	w := postJSON(t, r, "/violations/batch", []map[string]any{
		violationEntryJSON("s1", "NO_FACE", "HIGH"),
		violationEntryJSON("s1", "LOOKING_AWAY", "MEDIUM"),
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Success             bool     `json:"success"`
		ViolationsPersisted int      `json:"violationsPersisted"`
		SuspendedSessionIDs []string `json:"suspendedSessionIds"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || resp.ViolationsPersisted != 2 || len(resp.SuspendedSessionIDs) != 0 {
		t.Fatalf("unexpected response: %+v", resp)
	}

	sess, err := store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.SuspicionScore != monitoring.WeightHigh+monitoring.WeightMedium {
		t.Fatalf("score = %d", sess.SuspicionScore)
	}
	if sess.SubjectID != "subj-1" {
		t.Fatalf("subject must come from the authenticated user, got %s", sess.SubjectID)
	}
}

func TestIngestViolationsRejectsMalformedBatchWholesale(t *testing.T) {
	store := monitoring.NewMemoryStore()
	r := newTelemetryRouter(store)

	w := postJSON(t, r, "/violations/batch", []map[string]any{
		violationEntryJSON("s1", "NO_FACE", "HIGH"),
		{"violation": map[string]any{"type": "NO_FACE", "severity": "HIGH", "timestamp": time.Now().UTC().Format(time.RFC3339)}},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Error.Code != "MISSING_SESSION_ID" {
		t.Fatalf("unexpected error envelope: %+v", resp)
	}

	// Nothing from the batch may be persisted, not even the valid entry.
	if _, err := store.GetSession(context.Background(), "s1"); !errors.Is(err, monitoring.ErrSessionNotFound) {
		t.Fatalf("valid entry leaked into the store: %v", err)
	}
}

func TestIngestViolationsRejectsUnknownSeverity(t *testing.T) {
	r := newTelemetryRouter(monitoring.NewMemoryStore())
	w := postJSON(t, r, "/violations/batch", []map[string]any{
		violationEntryJSON("s1", "NO_FACE", "SEVERE"),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestIngestViolationsReportsSuspension(t *testing.T) {
	store := monitoring.NewMemoryStore()
	r := newTelemetryRouter(store)

	batch := make([]map[string]any, 0, 6)
	for i := 0; i < 6; i++ {
		batch = append(batch, violationEntryJSON("exam-42", fmt.Sprintf("TYPE_%d", i), "HIGH"))
	}
	w := postJSON(t, r, "/violations/batch", batch)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		SuspendedSessionIDs []string `json:"suspendedSessionIds"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.SuspendedSessionIDs) != 1 || resp.SuspendedSessionIDs[0] != "exam-42" {
		t.Fatalf("suspendedSessionIds = %v", resp.SuspendedSessionIDs)
	}
}

func TestIngestEventsDrivesSessionLifecycle(t *testing.T) {
	store := monitoring.NewMemoryStore()
	r := newTelemetryRouter(store)

	start := time.Now().UTC().Add(-time.Hour)
	end := time.Now().UTC()
	w := postJSON(t, r, "/events", []map[string]any{
		{"sessionId": "s1", "eventType": "start", "severity": "LOW", "timestamp": start.Format(time.RFC3339)},
		{"sessionId": "s1", "eventType": "end", "severity": "LOW", "timestamp": end.Format(time.RFC3339)},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	sess, err := store.GetSession(context.Background(), "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if sess.Status != monitoring.StatusCompleted {
		t.Fatalf("status = %s, want COMPLETED", sess.Status)
	}
	if sess.StartTime == nil || sess.EndTime == nil || sess.StartTime.After(*sess.EndTime) {
		t.Fatalf("want startTime <= endTime, got %v / %v", sess.StartTime, sess.EndTime)
	}
}

func TestIngestEventsRejectsInvalidEntry(t *testing.T) {
	r := newTelemetryRouter(monitoring.NewMemoryStore())
	w := postJSON(t, r, "/events", []map[string]any{
		{"sessionId": "", "eventType": "start"},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
