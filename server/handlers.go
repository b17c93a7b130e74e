package server

import (
	"context"
	"net/http"
	"time"

	"github.com/mdnaeem95/stupify-extension/config"
)

// handleStats serves GET /api/offline/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}

	stats, err := s.gateway.Stats()
	if err != nil {
		s.logger.Errorw("Failed to collect offline stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to collect stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// handleSync serves POST /api/offline/sync: a one-shot manual sync pass.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	result := s.engine.SyncNow(ctx)
	writeJSON(w, http.StatusOK, result)
}

// handleQueue serves GET and DELETE /api/offline/queue.
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if !requireMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		entries, err := s.queue.List()
		if err != nil {
			s.logger.Errorw("Failed to list queue", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to list queue")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"count":   len(entries),
			"entries": entries,
		})

	case http.MethodDelete:
		if err := s.queue.Clear(); err != nil {
			s.logger.Errorw("Failed to clear queue", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to clear queue")
			return
		}
		s.logger.Infow("Request queue cleared via API")
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
	}
}

// handleConnectivity serves POST /api/offline/connectivity: the extension
// relays browser online/offline events here as a passive signal.
func (s *Server) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var body struct {
		Online bool `json:"online"`
	}
	if err := readJSON(w, r, &body); err != nil {
		return
	}

	s.monitor.SetOnline(body.Online)
	writeJSON(w, http.StatusOK, map[string]bool{"offline": s.monitor.IsOffline()})
}

// handleSettings serves POST /api/offline/settings: persists UI-chosen
// settings and applies them to the running daemon.
func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}

	var body struct {
		DefaultComplexityTier string `json:"default_complexity_tier,omitempty"`
		RequestsPerMinute     int    `json:"requests_per_minute,omitempty"`
	}
	if err := readJSON(w, r, &body); err != nil {
		return
	}

	if body.DefaultComplexityTier != "" {
		if err := config.UpdateDefaultComplexityTier(body.DefaultComplexityTier); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if body.RequestsPerMinute != 0 {
		if err := config.UpdateUsageLimit(body.RequestsPerMinute); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.gateway.SetUsageLimit(body.RequestsPerMinute)
	}

	s.logger.Infow("Settings updated via API",
		"tier", body.DefaultComplexityTier,
		"requests_per_minute", body.RequestsPerMinute,
	)
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}
