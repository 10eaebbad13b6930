package main

import (
	"context"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/rickgao/chainbridge/internal/poller"
	"github.com/rickgao/chainbridge/internal/stream"
)

// pinger is satisfied by *pgxpool.Pool.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthState holds what /health reports on. Unset fields are skipped.
type healthState struct {
	network  string
	interval time.Duration
	db       pinger
	stats    func() poller.Stats
	tickers  func() stream.State
	now      func() time.Time
}

type healthReport struct {
	Status     string         `json:"status"`
	Network    string         `json:"network"`
	Components map[string]any `json:"components"`
}

// check builds the report. A poller that has not completed a cycle within
// three intervals degrades the status; a failed database ping makes it unhealthy.
func (h *healthState) check(ctx context.Context) healthReport {
	now := time.Now
	if h.now != nil {
		now = h.now
	}

	report := healthReport{
		Status:     "healthy",
		Network:    h.network,
		Components: make(map[string]any),
	}

	if h.stats != nil {
		stats := h.stats()
		poll := map[string]any{
			"cycles":  stats.Cycles,
			"samples": stats.Samples,
			"errors":  stats.Errors,
		}
		if !stats.LastRun.IsZero() {
			poll["last_run"] = stats.LastRun.UTC().Format(time.RFC3339)
		}
		if stats.LastRun.IsZero() || now().Sub(stats.LastRun) > 3*h.interval {
			report.Status = "degraded"
			poll["status"] = "stale"
		}
		report.Components["poller"] = poll
	}

	if h.tickers != nil {
		state := h.tickers()
		report.Components["ticker_stream"] = state.String()
		if state != stream.StateOpen && report.Status == "healthy" {
			report.Status = "degraded"
		}
	}

	if h.db != nil {
		if err := h.db.Ping(ctx); err != nil {
			report.Status = "unhealthy"
			report.Components["timescaledb"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			report.Components["timescaledb"] = "connected"
		}
	}

	return report
}

func (h *healthState) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		report := h.check(ctx)

		w.Header().Set("Content-Type", "application/json")
		if report.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})

	return mux
}
