package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

type fakeCatalog struct {
	markets []domain.Market
	err     error
	panics  bool
}

func (f *fakeCatalog) ListMarkets(context.Context, int) ([]domain.Market, error) {
	if f.panics {
		panic("catalog exploded")
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.markets, nil
}

type captureNotifier struct {
	events   []string
	messages []string
}

func (n *captureNotifier) Notify(_ context.Context, event, _, message string) {
	n.events = append(n.events, event)
	n.messages = append(n.messages, message)
}

func (n *captureNotifier) count(event string) int {
	c := 0
	for _, e := range n.events {
		if e == event {
			c++
		}
	}
	return c
}

type memEventStore struct {
	events []domain.TradeEvent
}

func (s *memEventStore) Append(_ context.Context, ev domain.TradeEvent) error {
	ev.ID = int64(len(s.events) + 1)
	s.events = append(s.events, ev)
	return nil
}

func (s *memEventStore) List(_ context.Context, dayKey string, _ domain.ListOpts) ([]domain.TradeEvent, error) {
	var out []domain.TradeEvent
	for _, ev := range s.events {
		if dayKey == "" || ev.DayKey == dayKey {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *memEventStore) names() []string {
	out := make([]string, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Event
	}
	return out
}

type fakeArchiver struct {
	called chan string
}

func (a *fakeArchiver) ArchiveDay(_ context.Context, dayKey string) (int64, error) {
	a.called <- dayKey
	return 1, nil
}

type tickFixture struct {
	orch     *Orchestrator
	catalog  *fakeCatalog
	gateway  *fakeGateway
	books    *fakeBooks
	gate     *RiskGate
	notifier *captureNotifier
	store    *memEventStore
	clock    time.Time
}

func newTickFixture(t *testing.T) *tickFixture {
	t.Helper()

	f := &tickFixture{
		catalog:  &fakeCatalog{},
		gateway:  &fakeGateway{},
		books:    &fakeBooks{snaps: map[string]domain.OrderbookSnapshot{}},
		gate:     NewRiskGate(testGateConfig(), testLogger()),
		notifier: &captureNotifier{},
		store:    &memEventStore{},
		clock:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.gate.Roll(f.clock)
	lc := NewLifecycle(testLifecycleConfig(), f.gateway, f.books, f.gate, testLogger())
	lc.now = func() time.Time { return f.clock }

	cfg := OrchestratorConfig{
		Scorer:               testScorerConfig(),
		Selector:             testSelectorConfig(),
		LoopInterval:         20 * time.Second,
		HeartbeatEveryNTicks: 1000,
		DryRun:               true,
		ChainID:              137,
	}
	f.orch = NewOrchestrator(cfg, f.catalog, f.books, f.gate, lc, testLogger()).
		WithNotifier(f.notifier).
		WithEventStore(f.store)
	f.orch.now = func() time.Time { return f.clock }
	return f
}

// seedMarket publishes one scoreable market with tight books on both sides.
func (f *tickFixture) seedMarket() {
	f.catalog.markets = []domain.Market{market("m1", "Will the launch hold?", "tokA", "tokB", 5000)}
	f.books.snaps["tokA"] = book("tokA", 0.49, 0.50)
	f.books.snaps["tokB"] = book("tokB", 0.50, 0.52)
}

func TestTickOpensPositionWhenSignalFound(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()

	f.orch.Tick(context.Background())

	st := f.orch.Status()
	require.NotNil(t, st.Position)
	assert.Equal(t, "m1", st.Position.MarketID)
	assert.Equal(t, 1, st.TradesToday)
	assert.Contains(t, st.LastAction, "opened m1")
	assert.Contains(t, st.LastPick, "Will the launch hold?")

	assert.Contains(t, f.store.names(), "position_opened")
	assert.Equal(t, 1, f.notifier.count("position_opened"))
}

func TestTickHaltedSkipsEntryHunt(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()
	for range testGateConfig().MaxTradesPerDay {
		f.gate.RecordOpen()
	}

	f.orch.Tick(context.Background())

	st := f.orch.Status()
	assert.True(t, st.Halted)
	assert.Nil(t, st.Position)
	assert.True(t, strings.HasPrefix(st.LastAction, "halted:"), st.LastAction)
	assert.Empty(t, f.gateway.posted)
	assert.Equal(t, 1, f.notifier.count("halted"))
}

func TestTickClosesOnStopLoss(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()

	f.orch.Tick(context.Background())
	require.NotNil(t, f.orch.Status().Position)

	// Mid drops through the 0.49 stop level.
	f.books.snaps["tokA"] = book("tokA", 0.47, 0.48)
	f.orch.Tick(context.Background())

	st := f.orch.Status()
	assert.Nil(t, st.Position)
	assert.Less(t, st.DayPnLEst, 0.0)
	assert.Equal(t, "closed (stop_loss)", st.LastAction)
	assert.Contains(t, f.store.names(), "position_closed")
	assert.Equal(t, 1, f.notifier.count("position_closed"))
}

func TestTickHoldsWhenNoExitReason(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()

	f.orch.Tick(context.Background())
	f.orch.Tick(context.Background())

	st := f.orch.Status()
	require.NotNil(t, st.Position)
	assert.Equal(t, "holding", st.LastAction)
	assert.Equal(t, 1, st.TradesToday)
}

func TestTickNoEntrySignal(t *testing.T) {
	f := newTickFixture(t)
	f.catalog.markets = []domain.Market{market("m1", "Thin market?", "tokA", "tokB", 200)}

	f.orch.Tick(context.Background())

	st := f.orch.Status()
	assert.Nil(t, st.Position)
	assert.Equal(t, "no entry signal", st.LastAction)
	assert.Empty(t, f.gateway.posted)
}

func TestTickCatalogFailureSurfacesError(t *testing.T) {
	f := newTickFixture(t)
	f.catalog.err = domain.ErrUpstreamFetch

	f.orch.Tick(context.Background())

	st := f.orch.Status()
	assert.NotEmpty(t, st.LastError)
	assert.Nil(t, st.Position)
}

func TestTickExitCheckFailureSkipsTick(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()
	f.orch.Tick(context.Background())

	f.books.err = domain.ErrUpstreamFetch
	f.orch.Tick(context.Background())

	st := f.orch.Status()
	require.NotNil(t, st.Position) // still holding; the next tick retries
	assert.NotEmpty(t, st.LastError)
}

func TestSafeTickRecoversPanic(t *testing.T) {
	f := newTickFixture(t)
	f.catalog.panics = true

	require.NotPanics(t, func() {
		f.orch.safeTick(context.Background())
	})
	assert.Contains(t, f.orch.Status().LastError, "tick panic")
}

func TestTickDayRolloverArchives(t *testing.T) {
	f := newTickFixture(t)
	arch := &fakeArchiver{called: make(chan string, 1)}
	f.orch.WithArchiver(arch)

	f.orch.Tick(context.Background())
	f.clock = f.clock.Add(24 * time.Hour)
	f.orch.Tick(context.Background())

	select {
	case day := <-arch.called:
		assert.Equal(t, "2025-03-01", day)
	case <-time.After(2 * time.Second):
		t.Fatal("archiver was not invoked after rollover")
	}
	assert.Contains(t, f.store.names(), "day_rolled")
	assert.Equal(t, "2025-03-02", f.gate.State().DayKey)
}

func TestHeartbeatCadence(t *testing.T) {
	f := newTickFixture(t)
	f.orch.cfg.HeartbeatEveryNTicks = 2

	for range 4 {
		f.orch.Tick(context.Background())
	}

	// Ticks 1 and 3 heartbeat on a cadence of 2.
	assert.Equal(t, 2, f.notifier.count("heartbeat"))
	assert.False(t, f.orch.Status().LastHeartbeat.IsZero())
}

func TestShutdownClosesOpenPosition(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()
	f.orch.Tick(context.Background())
	require.NotNil(t, f.orch.Status().Position)

	require.NoError(t, f.orch.Shutdown(context.Background()))

	st := f.orch.Status()
	assert.Nil(t, st.Position)
	assert.Equal(t, "closed (shutdown)", st.LastAction)
	assert.Contains(t, f.store.names(), "position_closed")
	assert.Equal(t, 1, f.notifier.count("position_closed"))
}

func TestShutdownWhenFlatIsNoop(t *testing.T) {
	f := newTickFixture(t)

	require.NoError(t, f.orch.Shutdown(context.Background()))
	assert.Empty(t, f.gateway.posted)
}

func TestShutdownReturnsSellError(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()
	f.orch.Tick(context.Background())
	require.NotNil(t, f.orch.Status().Position)

	f.gateway.postFn = func(int, domain.Order) (domain.OrderResult, error) {
		return domain.OrderResult{}, errors.New("gateway down")
	}

	err := f.orch.Shutdown(context.Background())
	require.ErrorIs(t, err, domain.ErrExitSubmission)
	// Flat regardless: the caller gets the error, not a stuck position.
	assert.Nil(t, f.orch.Status().Position)
}

func TestStatusSnapshotFields(t *testing.T) {
	f := newTickFixture(t)
	f.seedMarket()
	f.orch.Tick(context.Background())

	st := f.orch.Status()
	assert.False(t, st.Running) // Run was never started
	assert.True(t, st.DryRun)
	assert.Equal(t, 1, st.TradesToday)
	assert.False(t, st.Halted)
}
