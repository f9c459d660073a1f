package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// EventsHandler serves the append-only trade event log.
type EventsHandler struct {
	store  domain.TradeEventStore
	logger *slog.Logger
}

// NewEventsHandler creates an EventsHandler backed by the given store.
func NewEventsHandler(store domain.TradeEventStore, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		store:  store,
		logger: logHandler(logger, "events"),
	}
}

// ListEvents returns trade events, newest first. The day query parameter
// filters to one UTC day key; it defaults to today.
// GET /api/events?day=2025-03-01&limit=50&offset=0
func (h *EventsHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	dayKey := r.URL.Query().Get("day")
	if dayKey == "" {
		dayKey = domain.DayKey(time.Now())
	} else if _, err := time.Parse(domain.DayKeyLayout, dayKey); err != nil {
		writeError(w, http.StatusBadRequest, "invalid day, expected YYYY-MM-DD")
		return
	}

	events, err := h.store.List(r.Context(), dayKey, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed",
			slog.String("day", dayKey),
			slog.Any("error", err),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	if events == nil {
		events = []domain.TradeEvent{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"day":    dayKey,
		"count":  len(events),
		"events": events,
	})
}
