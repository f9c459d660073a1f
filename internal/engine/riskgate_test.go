package engine

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGateConfig() RiskGateConfig {
	return RiskGateConfig{
		DailyStopLossPct:       0.10,
		MaxTradesPerDay:        100,
		EquityFallbackMultiple: 10,
		OrderNotionalUSDC:      5,
	}
}

func TestGateHaltsOnTradeCap(t *testing.T) {
	g := NewRiskGate(testGateConfig(), testLogger())
	g.Roll(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	for range 100 {
		active, _ := g.CheckAndMaybeHalt()
		require.True(t, active)
		g.RecordOpen()
	}

	active, reason := g.CheckAndMaybeHalt()
	assert.False(t, active)
	assert.Contains(t, reason, "trade cap")

	// Idempotent: re-checking without new fills gives the same answer.
	active, again := g.CheckAndMaybeHalt()
	assert.False(t, active)
	assert.Equal(t, reason, again)
}

func TestGateHaltsOnDailyStopLoss(t *testing.T) {
	g := NewRiskGate(testGateConfig(), testLogger())
	g.Roll(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	// Fallback equity: 10 * 5 = 50 USDC, so the loss limit is -5.
	active, _ := g.CheckAndMaybeHalt()
	require.True(t, active)
	assert.InDelta(t, 50, g.State().StartEquityEstimate, 1e-9)

	g.RecordClose(-4.99)
	active, _ = g.CheckAndMaybeHalt()
	assert.True(t, active)

	g.RecordClose(-0.02)
	active, reason := g.CheckAndMaybeHalt()
	assert.False(t, active)
	assert.Contains(t, reason, "stop-loss")
}

func TestGateHaltStickyUntilRollover(t *testing.T) {
	g := NewRiskGate(testGateConfig(), testLogger())
	morning := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	g.Roll(morning)

	g.HaltTrading("manual")
	g.RecordClose(12.0) // a winning close must not clear the halt

	active, _ := g.CheckAndMaybeHalt()
	assert.False(t, active)

	// Same UTC day: no rollover, still halted.
	assert.False(t, g.Roll(morning.Add(14*time.Hour)))
	active, _ = g.CheckAndMaybeHalt()
	assert.False(t, active)

	// Crossing midnight UTC resets everything.
	assert.True(t, g.Roll(morning.Add(16*time.Hour)))
	active, _ = g.CheckAndMaybeHalt()
	assert.True(t, active)
	st := g.State()
	assert.Equal(t, "2025-03-02", st.DayKey)
	assert.Zero(t, st.TradesExecutedToday)
	assert.Zero(t, st.RealizedPnL)
	assert.False(t, st.Halted)
}

func TestGateRecordsOpensAndCloses(t *testing.T) {
	g := NewRiskGate(testGateConfig(), testLogger())
	g.Roll(time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC))

	g.RecordOpen()
	g.RecordOpen()
	g.RecordClose(1.5)
	g.RecordClose(-0.5)

	st := g.State()
	assert.Equal(t, 2, st.TradesExecutedToday)
	assert.InDelta(t, 1.0, st.RealizedPnL, 1e-9)
}
