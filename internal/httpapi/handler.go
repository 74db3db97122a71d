package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/pmacquire/daemon/internal/supervisor"
)

// healthResponse is the JSON body of GET /healthz. Status is "ok" once a
// snapshot exists at all — the daemon has no notion of a degraded state
// distinct from individual collector error counts, which are surfaced
// verbatim from the supervisor snapshot.
type healthResponse struct {
	Status string `json:"status"`
	supervisor.Health
}

func healthHandler(source HealthSource, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status: "ok",
			Health: source.Health(),
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}
