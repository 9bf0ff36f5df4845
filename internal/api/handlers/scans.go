package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/eargollo/ppfinder/internal/scan"
)

// ScansHandler handles scan-related API endpoints.
type ScansHandler struct {
	Manager *scan.Manager
}

type createScanRequest struct {
	Root string `json:"root"`
}

// currentScanResponse is the body of GET /api/scans/current.
type currentScanResponse struct {
	Active   *scan.ActiveScan `json:"active"`
	Progress *scan.Snapshot   `json:"progress"`
}

// Create handles POST /api/scans. It triggers a manual scan of the body's
// root, or of the configured songs directory when the body is empty.
func (h *ScansHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createScanRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body")
		return
	}

	active, err := h.Manager.Start(context.Background(), req.Root, "manual")
	if err != nil {
		switch {
		case errors.Is(err, scan.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, "SCAN_ALREADY_RUNNING", "A scan is already in progress")
		case errors.Is(err, scan.ErrNoRoot):
			writeError(w, http.StatusBadRequest, "NO_ROOT", "No songs directory given or configured")
		default:
			slog.Error("scans: start", "error", err)
			writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to start scan")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":           active.ID,
		"status":       "running",
		"root":         active.Root,
		"started_at":   active.StartedAt.UTC().Format(time.RFC3339),
		"triggered_by": active.TriggeredBy,
	})
}

// Current handles GET /api/scans/current: the running scan, if any, and the
// latest progress snapshot of the current or last scan.
func (h *ScansHandler) Current(w http.ResponseWriter, r *http.Request) {
	active := h.Manager.ActiveScan()
	snap, ok := h.Manager.Latest()
	if active == nil && !ok {
		writeError(w, http.StatusNotFound, "NO_SCAN", "No scan has run yet")
		return
	}
	resp := currentScanResponse{Active: active}
	if ok {
		resp.Progress = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

// Events handles GET /api/scans/current/events: a Server-Sent Events stream
// of progress snapshots that ends after the terminal one.
func (h *ScansHandler) Events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "STREAMING_UNSUPPORTED", "Streaming is not supported")
		return
	}
	if _, ok := h.Manager.Latest(); !ok && h.Manager.ActiveScan() == nil {
		writeError(w, http.StatusNotFound, "NO_SCAN", "No scan has run yet")
		return
	}

	snaps, unsubscribe := h.Manager.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			data, err := json.Marshal(s)
			if err != nil {
				slog.Error("scans: encode event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: progress\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
			if s.Finished {
				return
			}
		}
	}
}

// Cancel handles DELETE /api/scans/current.
func (h *ScansHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	active, err := h.Manager.Cancel()
	if err != nil {
		if errors.Is(err, scan.ErrNoActiveScan) {
			writeError(w, http.StatusNotFound, "NO_ACTIVE_SCAN", "No scan is currently running")
			return
		}
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":         active.ID,
		"status":     "cancelling",
		"root":       active.Root,
		"started_at": active.StartedAt.UTC().Format(time.RFC3339),
	})
}
