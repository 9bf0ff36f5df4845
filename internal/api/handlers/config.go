package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/eargollo/ppfinder/internal/config"
	"github.com/eargollo/ppfinder/internal/scan"
	"github.com/eargollo/ppfinder/internal/scheduler"
)

// ConfigHandler handles GET/PATCH /api/config.
type ConfigHandler struct {
	Cfg     *config.Config
	Manager *scan.Manager
	Sched   *scheduler.Scheduler
	mu      sync.Mutex // guards Cfg mutations
}

// ConfigPatch describes the fields that can be updated at runtime.
// Only supplied (non-nil) fields are applied. Changes are not written back
// to the configuration file.
type ConfigPatch struct {
	SongsDir *string `json:"songs_dir"`
	Schedule *string `json:"schedule"`
}

// Get handles GET /api/config.
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, http.StatusOK, h.Cfg)
}

// Apply validates patch against the current configuration, then applies it
// to h.Cfg, the scan manager and the scheduler. Nothing changes on error.
func (h *ConfigHandler) Apply(ctx context.Context, patch ConfigPatch) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	next := *h.Cfg
	if patch.SongsDir != nil {
		next.SongsDir = *patch.SongsDir
	}
	if patch.Schedule != nil {
		next.Schedule = *patch.Schedule
	}
	if err := next.Validate(); err != nil {
		return err
	}

	if patch.Schedule != nil && h.Sched != nil {
		if next.Schedule == "" {
			h.Sched.Clear()
		} else if err := h.Sched.SetRescan(ctx, next.Schedule, h.Manager); err != nil {
			return fmt.Errorf("schedule: %w", err)
		}
	}
	if patch.SongsDir != nil && h.Manager != nil {
		h.Manager.SetDefaultRoot(next.SongsDir)
	}
	*h.Cfg = next
	return nil
}

// Update handles PATCH /api/config.
func (h *ConfigHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch ConfigPatch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	// Scheduled scans outlive the request.
	if err := h.Apply(context.Background(), patch); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_CONFIG", err.Error())
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	writeJSON(w, http.StatusOK, h.Cfg)
}
