package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pmacquire/daemon/internal/supervisor"
)

type fakeHealthSource struct {
	h supervisor.Health
}

func (f fakeHealthSource) Health() supervisor.Health { return f.h }

func TestHealthzReturnsSupervisorSnapshot(t *testing.T) {
	source := fakeHealthSource{h: supervisor.Health{
		StartedAt: time.Now().UTC(),
		Uptime:    "1h 2m",
		Collectors: map[string]supervisor.CollectorStats{
			"market_poller": {TotalItems: 42},
		},
		TaskStates: map[string]supervisor.TaskState{
			"market_poller": {Phase: supervisor.PhaseRunning},
		},
	}}

	srv := NewServer(Config{Port: 0}, source, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)

	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Fatalf("expected status ok, got %v", body["status"])
	}
	if body["Uptime"] != "1h 2m" {
		t.Fatalf("expected uptime to round-trip, got %v", body["Uptime"])
	}
	collectors, ok := body["Collectors"].(map[string]any)
	if !ok {
		t.Fatal("expected Collectors object in response")
	}
	if _, ok := collectors["market_poller"]; !ok {
		t.Fatal("expected market_poller stats in response")
	}
}

func TestHealthzIsGetOnly(t *testing.T) {
	srv := NewServer(Config{Port: 0}, fakeHealthSource{}, nil)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/healthz", nil)

	srv.httpServer.Handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /healthz, got %d", rec.Code)
	}
}
