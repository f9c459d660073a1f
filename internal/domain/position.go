package domain

import "time"

// Position is the single live holding. The engine enforces at most one
// open position systemwide; a nil *Position means flat.
type Position struct {
	MarketID          string
	TokenID           string
	Side              string // outcome label, e.g. "Yes"
	EntryPrice        float64
	Size              float64
	OpenedAt          time.Time
	TakeProfitOrderID string // empty when no resting take-profit order
}

// Age returns how long the position has been held as of now.
func (p Position) Age(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}
