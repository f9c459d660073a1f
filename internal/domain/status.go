package domain

import "time"

// BotStatus is the point-in-time snapshot served by the status endpoint.
type BotStatus struct {
	Running       bool      `json:"running"`
	DryRun        bool      `json:"dry_run"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	LastError     string    `json:"last_error,omitempty"`
	LastPick      string    `json:"last_pick,omitempty"`
	LastAction    string    `json:"last_action,omitempty"`
	Position      *Position `json:"position,omitempty"`
	DayPnLEst     float64   `json:"day_pnl_estimate"`
	Halted        bool      `json:"halted"`
	TradesToday   int       `json:"trades_today"`
}
