package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/scheduler"
	"github.com/eargollo/ppfinder/internal/store"
)

// StatusHandler handles GET /api/status.
type StatusHandler struct {
	Manager *scan.Manager
	Store   *store.Store
	Sched   *scheduler.Scheduler
	Version string
}

type statusResponse struct {
	Version    string           `json:"version"`
	ActiveScan *scan.ActiveScan `json:"active_scan"`
	LastScan   *scan.Snapshot   `json:"last_scan"`
	Index      *store.Counts    `json:"index"`
	Schedule   scheduleInfo     `json:"schedule"`
}

type scheduleInfo struct {
	Cron      string     `json:"cron"`
	NextRunAt *time.Time `json:"next_run_at"`
}

// ServeHTTP returns the system status as JSON. A failing count query leaves
// index null rather than failing the request.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:    h.Version,
		ActiveScan: h.Manager.ActiveScan(),
	}
	if snap, ok := h.Manager.Latest(); ok {
		resp.LastScan = &snap
	}
	if h.Store != nil {
		counts, err := h.Store.Counts(r.Context())
		if err != nil {
			slog.Error("status: count rows", "error", err)
		} else {
			resp.Index = &counts
		}
	}
	if h.Sched != nil {
		resp.Schedule = scheduleInfo{
			Cron:      h.Sched.CronExpr(),
			NextRunAt: h.Sched.NextRunAt(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
