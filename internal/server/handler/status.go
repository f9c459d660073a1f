package handler

import (
	"net/http"
	"time"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// StatusFunc supplies the current bot status snapshot.
type StatusFunc func() domain.BotStatus

// StatusHandler serves the live bot status. It works with or without trading
// credentials configured; a bot running in server-only mode still reports.
type StatusHandler struct {
	mode      string
	startedAt time.Time
	status    StatusFunc
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, status StatusFunc) *StatusHandler {
	return &StatusHandler{mode: mode, startedAt: startedAt, status: status}
}

type statusResponse struct {
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	domain.BotStatus
}

// GetStatus responds with the bot mode, uptime, and the orchestrator's
// latest snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	resp := statusResponse{
		Mode:          h.mode,
		UptimeSeconds: uptime,
	}
	if h.status != nil {
		resp.BotStatus = h.status()
	}
	writeJSON(w, http.StatusOK, resp)
}
