package controllers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/hackforge/proctor-backend/internal/models"
)

// Validation runs before any database access, so these tests exercise the
// write path without a connection.
func newFaceRouter(user models.User) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	fc := &FaceDescriptorController{}
	r.POST("/users/:id/face-descriptor", authAs(user), fc.Upsert)
	return r
}

func descriptorOf(n int) []float64 {
	d := make([]float64, n)
	for i := range d {
		d[i] = 0.5
	}
	return d
}

func TestFaceDescriptorRejectsWrongLength(t *testing.T) {
	r := newFaceRouter(participant())
	w := postJSON(t, r, "/users/subj-1/face-descriptor", map[string]any{
		"descriptor": descriptorOf(127),
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "128") || !strings.Contains(body, "127") {
		t.Fatalf("error must name expected and actual counts, got %s", body)
	}
}

func TestFaceDescriptorRejectsOutOfRangeValue(t *testing.T) {
	r := newFaceRouter(participant())
	d := descriptorOf(128)
	d[5] = 1.5
	w := postJSON(t, r, "/users/subj-1/face-descriptor", map[string]any{
		"descriptor": d,
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "index 5") || !strings.Contains(body, "1.5") {
		t.Fatalf("error must name the offending index and value, got %s", body)
	}
}

func TestFaceDescriptorRejectsNonFiniteValue(t *testing.T) {
	r := newFaceRouter(participant())
	// json.Marshal cannot represent Inf, so send the raw literal.
	raw := `{"descriptor": [` + strings.Repeat("0.5,", 127) + `1e999]}`
	req := httptest.NewRequest(http.MethodPost, "/users/subj-1/face-descriptor", strings.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestFaceDescriptorForbidsOtherSubjects(t *testing.T) {
	r := newFaceRouter(participant())
	w := postJSON(t, r, "/users/subj-2/face-descriptor", map[string]any{
		"descriptor": descriptorOf(128),
	})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
}

func TestFaceDescriptorAllowsPrivilegedRoles(t *testing.T) {
	r := newFaceRouter(models.User{UserID: "judge-1", Role: "judge", Active: true})
	w := postJSON(t, r, "/users/subj-2/face-descriptor", map[string]any{
		"descriptor": descriptorOf(127),
	})
	// Past the access check, failing on length rather than 403.
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
