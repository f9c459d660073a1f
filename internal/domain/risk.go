package domain

import "time"

// DayKeyLayout formats a time into the UTC calendar-day bucket that
// scopes daily risk accounting.
const DayKeyLayout = "2006-01-02"

// DayKey returns the UTC day bucket for t.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayKeyLayout)
}

// DayRiskState is the in-memory daily risk ledger. It is reset only when
// the day key rolls over; Halted is sticky for the rest of the day.
type DayRiskState struct {
	DayKey              string
	StartEquityEstimate float64
	RealizedPnL         float64
	TradesExecutedToday int
	Halted              bool
	HaltReason          string
}
