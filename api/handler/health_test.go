package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/unfurl/models"
)

type fakeStats struct {
	stats models.SessionStats
}

func (f *fakeStats) Stats() models.SessionStats { return f.stats }

func getHealth(t *testing.T, sp StatsProvider) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", Health(sp, time.Now()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	return w
}

func TestHealth_Healthy(t *testing.T) {
	w := getHealth(t, &fakeStats{stats: models.SessionStats{MaxSessions: 4, ActiveSessions: 1}})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q, want healthy", resp.Status)
	}
	if resp.Timestamp == 0 {
		t.Error("timestamp not set")
	}
}

func TestHealth_DegradedNearCapacity(t *testing.T) {
	w := getHealth(t, &fakeStats{stats: models.SessionStats{MaxSessions: 4, ActiveSessions: 4}})

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp models.HealthResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}
