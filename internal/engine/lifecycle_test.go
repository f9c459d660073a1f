package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// fakeGateway fills FAK orders at their limit price and rests everything
// else, unless postFn overrides it.
type fakeGateway struct {
	posted   []domain.Order
	canceled []string
	postFn   func(call int, order domain.Order) (domain.OrderResult, error)
}

func (f *fakeGateway) PostOrder(_ context.Context, order domain.Order) (domain.OrderResult, error) {
	call := len(f.posted)
	f.posted = append(f.posted, order)
	if f.postFn != nil {
		return f.postFn(call, order)
	}
	result := domain.OrderResult{Success: true, OrderID: order.ID}
	if order.Type == domain.OrderTypeFAK {
		result.Status = domain.OrderStatusMatched
		result.FilledPrice = order.Price()
		result.FilledSize = order.Size()
	} else {
		result.Status = domain.OrderStatusOpen
	}
	return result, nil
}

func (f *fakeGateway) CancelOrder(_ context.Context, orderID string) error {
	f.canceled = append(f.canceled, orderID)
	return nil
}

type fakeBooks struct {
	snaps map[string]domain.OrderbookSnapshot
	err   error
}

func (f *fakeBooks) GetOrderBook(_ context.Context, tokenID string) (domain.OrderbookSnapshot, error) {
	if f.err != nil {
		return domain.OrderbookSnapshot{}, f.err
	}
	snap, ok := f.snaps[tokenID]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func book(tokenID string, bid, ask float64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		AssetID:   tokenID,
		Bids:      []domain.PriceLevel{{Price: bid, Size: 100}},
		Asks:      []domain.PriceLevel{{Price: ask, Size: 100}},
		Timestamp: time.Now(),
	}
}

func testLifecycleConfig() LifecycleConfig {
	return LifecycleConfig{
		Wallet:            "0xabc",
		OrderNotionalUSDC: 5,
		TakeProfitPct:     0.05,
		StopLossPct:       0.02,
		MaxHold:           time.Hour,
		CloseSizeFraction: 1.0,
	}
}

type lifecycleFixture struct {
	lc      *Lifecycle
	gateway *fakeGateway
	books   *fakeBooks
	gate    *RiskGate
	clock   time.Time
}

func newLifecycleFixture(t *testing.T, cfg LifecycleConfig) *lifecycleFixture {
	t.Helper()
	f := &lifecycleFixture{
		gateway: &fakeGateway{},
		books:   &fakeBooks{snaps: map[string]domain.OrderbookSnapshot{}},
		gate:    NewRiskGate(testGateConfig(), testLogger()),
		clock:   time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.gate.Roll(f.clock)
	f.lc = NewLifecycle(cfg, f.gateway, f.books, f.gate, testLogger())
	f.lc.now = func() time.Time { return f.clock }
	return f
}

func (f *lifecycleFixture) open(t *testing.T) domain.Position {
	t.Helper()
	m := market("m1", "Will the snow stick?", "tokA", "tokB", 5000)
	sel := Selection{MarketID: "m1", TokenID: "tokA", OutcomeIndex: 0, Side: "Yes", EntryPrice: 0.50}
	pos, err := f.lc.Open(context.Background(), candidate(m, quote("tokA", 0.48, 0.50), quote("tokB", 0.50, 0.52)), sel)
	require.NoError(t, err)
	return pos
}

func TestOpenCreatesPositionAndTakeProfit(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())

	pos := f.open(t)

	assert.Equal(t, "m1", pos.MarketID)
	assert.Equal(t, "Yes", pos.Side)
	assert.InDelta(t, 0.50, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 10, pos.Size, 1e-6) // 5 USDC / 0.50
	assert.NotEmpty(t, pos.TakeProfitOrderID)

	require.Len(t, f.gateway.posted, 2)
	entry, tp := f.gateway.posted[0], f.gateway.posted[1]
	assert.Equal(t, domain.OrderSideBuy, entry.Side)
	assert.Equal(t, domain.OrderTypeFAK, entry.Type)
	assert.Equal(t, domain.OrderSideSell, tp.Side)
	assert.Equal(t, domain.OrderTypeGTC, tp.Type)
	assert.InDelta(t, 0.525, tp.Price(), 1e-6) // 0.50 * 1.05

	assert.Equal(t, 1, f.gate.State().TradesExecutedToday)
	require.NotNil(t, f.lc.Position())
}

func TestOpenWhileHeldHaltsAndLeavesState(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)

	m2 := market("m2", "Second market?", "tokC", "tokD", 5000)
	sel := Selection{MarketID: "m2", TokenID: "tokC", Side: "Yes", EntryPrice: 0.40}
	_, err := f.lc.Open(context.Background(), candidate(m2, quote("tokC", 0.38, 0.40), quote("tokD", 0.58, 0.60)), sel)

	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.Equal(t, "m1", f.lc.Position().MarketID)
	assert.Equal(t, 1, f.gate.State().TradesExecutedToday)

	active, reason := f.gate.CheckAndMaybeHalt()
	assert.False(t, active)
	assert.Contains(t, reason, "position is held")
	assert.Len(t, f.gateway.posted, 2) // no third order went out
}

func TestOpenRejectedNotCounted(t *testing.T) {
	cases := []struct {
		name   string
		postFn func(call int, order domain.Order) (domain.OrderResult, error)
	}{
		{
			"gateway error",
			func(int, domain.Order) (domain.OrderResult, error) {
				return domain.OrderResult{}, errors.New("boom")
			},
		},
		{
			"not matched",
			func(int, domain.Order) (domain.OrderResult, error) {
				return domain.OrderResult{Success: true, Status: domain.OrderStatusCancelled}, nil
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newLifecycleFixture(t, testLifecycleConfig())
			f.gateway.postFn = tc.postFn

			m := market("m1", "Will it fill?", "tokA", "tokB", 5000)
			sel := Selection{MarketID: "m1", TokenID: "tokA", Side: "Yes", EntryPrice: 0.50}
			_, err := f.lc.Open(context.Background(), candidate(m, quote("tokA", 0.48, 0.50), quote("tokB", 0.50, 0.52)), sel)

			require.ErrorIs(t, err, domain.ErrEntryRejected)
			assert.Nil(t, f.lc.Position())
			assert.Zero(t, f.gate.State().TradesExecutedToday)
		})
	}
}

func TestOpenSurvivesTakeProfitFailure(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.gateway.postFn = func(call int, order domain.Order) (domain.OrderResult, error) {
		if call == 0 {
			return domain.OrderResult{
				Success:     true,
				OrderID:     order.ID,
				Status:      domain.OrderStatusMatched,
				FilledPrice: order.Price(),
				FilledSize:  order.Size(),
			}, nil
		}
		return domain.OrderResult{}, errors.New("tp rejected")
	}

	pos := f.open(t)
	assert.Empty(t, pos.TakeProfitOrderID)
	assert.Equal(t, 1, f.gate.State().TradesExecutedToday)
}

func TestCheckExitStopLossBeforeMaxHold(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)

	// Stop level is 0.50 * 0.98 = 0.49.
	f.books.snaps["tokA"] = book("tokA", 0.49, 0.50) // mid 0.495, above the stop
	reason, err := f.lc.CheckExit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reason)

	f.books.snaps["tokA"] = book("tokA", 0.48, 0.49) // mid 0.485
	f.clock = f.clock.Add(2 * time.Hour)             // max-hold also expired

	reason, err = f.lc.CheckExit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitReasonStopLoss, reason)
}

func TestCheckExitMaxHold(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)
	f.books.snaps["tokA"] = book("tokA", 0.50, 0.52)

	reason, err := f.lc.CheckExit(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reason)

	f.clock = f.clock.Add(61 * time.Minute)
	reason, err = f.lc.CheckExit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitReasonMaxHold, reason)
}

func TestCheckExitSkipsOnBookProblems(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)

	f.books.err = domain.ErrUpstreamFetch
	reason, err := f.lc.CheckExit(context.Background())
	assert.Error(t, err)
	assert.Empty(t, reason)

	f.books.err = nil
	f.books.snaps["tokA"] = domain.OrderbookSnapshot{
		AssetID: "tokA",
		Bids:    []domain.PriceLevel{{Price: 0.48, Size: 100}},
	}
	reason, err = f.lc.CheckExit(context.Background())
	assert.ErrorIs(t, err, domain.ErrUpstreamFetch)
	assert.Empty(t, reason)

	require.NotNil(t, f.lc.Position())
}

func TestCloseRoundTripZeroPnL(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	pos := f.open(t)
	f.books.snaps["tokA"] = book("tokA", 0.50, 0.52)

	pnl, err := f.lc.Close(context.Background(), ExitReasonMaxHold)
	require.NoError(t, err)
	assert.InDelta(t, 0, pnl, 1e-9)

	assert.Nil(t, f.lc.Position())
	assert.InDelta(t, 0, f.gate.State().RealizedPnL, 1e-9)
	assert.Equal(t, []string{pos.TakeProfitOrderID}, f.gateway.canceled)

	require.Len(t, f.gateway.posted, 3)
	sell := f.gateway.posted[2]
	assert.Equal(t, domain.OrderSideSell, sell.Side)
	assert.Equal(t, domain.OrderTypeFAK, sell.Type)
	assert.InDelta(t, 0.50, sell.Price(), 1e-6)
}

func TestCloseBooksLoss(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)
	f.books.snaps["tokA"] = book("tokA", 0.48, 0.49)

	pnl, err := f.lc.Close(context.Background(), ExitReasonStopLoss)
	require.NoError(t, err)
	assert.InDelta(t, -0.20, pnl, 1e-6) // (0.48 - 0.50) * 10
	assert.InDelta(t, -0.20, f.gate.State().RealizedPnL, 1e-6)
}

func TestCloseFailSafeOnSellFailure(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)
	f.books.snaps["tokA"] = book("tokA", 0.48, 0.49)

	f.gateway.postFn = func(int, domain.Order) (domain.OrderResult, error) {
		return domain.OrderResult{}, errors.New("exchange down")
	}

	pnl, err := f.lc.Close(context.Background(), ExitReasonStopLoss)
	require.ErrorIs(t, err, domain.ErrExitSubmission)

	// Flat and booked regardless of the failed sell.
	assert.Nil(t, f.lc.Position())
	assert.InDelta(t, -0.20, pnl, 1e-6)
	assert.InDelta(t, -0.20, f.gate.State().RealizedPnL, 1e-6)
}

func TestCloseFallsBackToEntryWhenBookUnavailable(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())
	f.open(t)
	f.books.err = domain.ErrUpstreamFetch

	pnl, err := f.lc.Close(context.Background(), ExitReasonShutdown)
	require.ErrorIs(t, err, domain.ErrExitSubmission)
	assert.InDelta(t, 0, pnl, 1e-9)
	assert.Nil(t, f.lc.Position())
}

func TestCloseWhenFlatIsNoop(t *testing.T) {
	f := newLifecycleFixture(t, testLifecycleConfig())

	pnl, err := f.lc.Close(context.Background(), ExitReasonShutdown)
	require.NoError(t, err)
	assert.Zero(t, pnl)
	assert.Empty(t, f.gateway.posted)
}
