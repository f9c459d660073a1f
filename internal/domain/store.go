package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeEvent is one append-only row in the trade event log. Detail holds
// event-specific fields (prices, sizes, reasons) as a JSON object.
type TradeEvent struct {
	ID        int64
	DayKey    string
	Event     string
	MarketID  string
	TokenID   string
	Detail    map[string]any
	CreatedAt time.Time
}

// TradeEventStore persists the append-only trade event log. Logging is
// best-effort: callers treat failures as log-and-continue, never as a
// reason to abort a tick.
type TradeEventStore interface {
	Append(ctx context.Context, ev TradeEvent) error
	List(ctx context.Context, dayKey string, opts ListOpts) ([]TradeEvent, error)
}
