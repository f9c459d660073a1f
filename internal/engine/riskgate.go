package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// RiskGateConfig holds the daily loss and trade-count limits.
type RiskGateConfig struct {
	DailyStopLossPct       float64
	MaxTradesPerDay        int
	EquityFallbackMultiple float64
	OrderNotionalUSDC      float64
}

// RiskGate owns the in-memory daily risk ledger. Once it halts, it stays
// halted until the UTC day key rolls over; nothing else resets it. The gate
// is not safe for concurrent use; the tick loop owns it.
type RiskGate struct {
	cfg    RiskGateConfig
	state  domain.DayRiskState
	logger *slog.Logger
}

// NewRiskGate creates a gate with an empty ledger; the first Roll call
// initializes the day key.
func NewRiskGate(cfg RiskGateConfig, logger *slog.Logger) *RiskGate {
	return &RiskGate{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "riskgate")),
	}
}

// Roll resets the ledger when now crosses into a new UTC day. It returns
// true when a rollover happened, which clears the halt flag, the trade
// count, and realized PnL.
func (g *RiskGate) Roll(now time.Time) bool {
	key := domain.DayKey(now)
	if key == g.state.DayKey {
		return false
	}

	prev := g.state
	g.state = domain.DayRiskState{DayKey: key}

	if prev.DayKey != "" {
		g.logger.Info("day risk state rolled",
			slog.String("prev_day", prev.DayKey),
			slog.String("day", key),
			slog.Float64("prev_realized_pnl", prev.RealizedPnL),
			slog.Int("prev_trades", prev.TradesExecutedToday),
			slog.Bool("was_halted", prev.Halted),
		)
	}
	return true
}

// CheckAndMaybeHalt evaluates the halt conditions and returns whether
// trading is allowed. It is idempotent within a tick: re-running it without
// new fills cannot change the answer.
//
// The start-of-day equity is lazily estimated as a configured multiple of
// the order notional. That is a stand-in for a real balance feed and skews
// the daily-loss trigger when actual equity differs; a wired balance source
// would replace it.
func (g *RiskGate) CheckAndMaybeHalt() (active bool, reason string) {
	if g.state.Halted {
		return false, g.state.HaltReason
	}

	if g.state.StartEquityEstimate == 0 {
		g.state.StartEquityEstimate = g.cfg.EquityFallbackMultiple * g.cfg.OrderNotionalUSDC
	}

	if g.state.TradesExecutedToday >= g.cfg.MaxTradesPerDay {
		g.halt(fmt.Sprintf("daily trade cap reached (%d/%d)", g.state.TradesExecutedToday, g.cfg.MaxTradesPerDay))
		return false, g.state.HaltReason
	}

	lossLimit := -g.cfg.DailyStopLossPct * g.state.StartEquityEstimate
	if g.state.RealizedPnL <= lossLimit {
		g.halt(fmt.Sprintf("daily stop-loss hit (pnl %.4f <= %.4f)", g.state.RealizedPnL, lossLimit))
		return false, g.state.HaltReason
	}

	return true, ""
}

// RecordOpen counts one successfully opened position. Rejected entries must
// not be recorded.
func (g *RiskGate) RecordOpen() {
	g.state.TradesExecutedToday++
}

// RecordClose adds the realized PnL of a closed position to the day ledger.
func (g *RiskGate) RecordClose(pnl float64) {
	g.state.RealizedPnL += pnl
}

// HaltTrading force-halts the gate, e.g. after a state invariant violation.
// Like any halt it only clears on day rollover.
func (g *RiskGate) HaltTrading(reason string) {
	if !g.state.Halted {
		g.halt(reason)
	}
}

// State returns a copy of the current day ledger.
func (g *RiskGate) State() domain.DayRiskState {
	return g.state
}

func (g *RiskGate) halt(reason string) {
	g.state.Halted = true
	g.state.HaltReason = reason
	g.logger.Warn("trading halted for the day",
		slog.String("day", g.state.DayKey),
		slog.String("reason", reason),
	)
}
