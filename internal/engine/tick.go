package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// catalogFetchLimit is how many markets one Gamma page request asks for.
const catalogFetchLimit = 100

// Notifier delivers operator notifications. Implementations must never
// block the tick loop.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string)
}

// Broadcaster fans tick events out to live status watchers.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// OrchestratorConfig holds the loop-level knobs.
type OrchestratorConfig struct {
	Scorer   ScorerConfig
	Selector SelectorConfig

	LoopInterval         time.Duration
	HeartbeatEveryNTicks int
	DryRun               bool
	ChainID              int
}

// Orchestrator drives one decision cycle per tick: roll day state, consult
// the risk gate, manage the open position or hunt for a new entry. A tick
// error is logged and surfaced on the status endpoint; it never aborts the
// process.
//
// All mutable trading state (gate, lifecycle, status fields) is owned by
// the tick loop; the mutex only exists so status readers see a consistent
// snapshot.
type Orchestrator struct {
	cfg          OrchestratorConfig
	catalog      CatalogSource
	catalogCache domain.CatalogCache // optional
	quoteCache   domain.QuoteCache   // optional
	books        BookSource
	gate         *RiskGate
	lifecycle    *Lifecycle
	notifier     Notifier               // optional
	events       domain.TradeEventStore // optional
	archiver     domain.Archiver        // optional
	broadcast    Broadcaster            // optional
	logger       *slog.Logger
	now          func() time.Time

	mu            sync.Mutex
	running       bool
	tickCount     int
	lastHeartbeat time.Time
	lastError     string
	lastPick      string
	lastAction    string
}

// NewOrchestrator wires the tick loop. catalogCache, quoteCache, notifier,
// events, archiver, and broadcast may each be nil; the loop degrades to
// running without them.
func NewOrchestrator(
	cfg OrchestratorConfig,
	catalog CatalogSource,
	books BookSource,
	gate *RiskGate,
	lifecycle *Lifecycle,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		catalog:   catalog,
		books:     books,
		gate:      gate,
		lifecycle: lifecycle,
		logger:    logger.With(slog.String("component", "orchestrator")),
		now:       time.Now,
	}
}

// WithCatalogCache attaches the short-lived catalog cache.
func (o *Orchestrator) WithCatalogCache(c domain.CatalogCache) *Orchestrator { o.catalogCache = c; return o }

// WithQuoteCache attaches the last-quote cache.
func (o *Orchestrator) WithQuoteCache(c domain.QuoteCache) *Orchestrator { o.quoteCache = c; return o }

// WithNotifier attaches the operator notification channel.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator { o.notifier = n; return o }

// WithEventStore attaches the append-only trade event log.
func (o *Orchestrator) WithEventStore(s domain.TradeEventStore) *Orchestrator { o.events = s; return o }

// WithArchiver attaches day-end cold-storage archival.
func (o *Orchestrator) WithArchiver(a domain.Archiver) *Orchestrator { o.archiver = a; return o }

// WithBroadcaster attaches the live event stream.
func (o *Orchestrator) WithBroadcaster(b Broadcaster) *Orchestrator { o.broadcast = b; return o }

// Run executes the poll loop until ctx is cancelled. The first tick fires
// immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.mu.Lock()
	o.running = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	o.logger.InfoContext(ctx, "tick loop starting",
		slog.Duration("interval", o.cfg.LoopInterval),
		slog.Bool("dry_run", o.cfg.DryRun),
	)

	ticker := time.NewTicker(o.cfg.LoopInterval)
	defer ticker.Stop()

	o.safeTick(ctx)
	for {
		select {
		case <-ctx.Done():
			o.logger.Info("tick loop stopping")
			return ctx.Err()
		case <-ticker.C:
			o.safeTick(ctx)
		}
	}
}

// safeTick shields the loop from panics inside a tick.
func (o *Orchestrator) safeTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "tick panicked", slog.Any("panic", r))
			o.mu.Lock()
			o.lastError = fmt.Sprintf("tick panic: %v", r)
			o.mu.Unlock()
		}
	}()
	o.Tick(ctx)
}

// Tick runs one decision cycle.
func (o *Orchestrator) Tick(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.tickCount++
	now := o.now()

	// 1. Day rollover. Archive the finished day before the ledger resets.
	prevDay := o.gate.State().DayKey
	if o.gate.Roll(now) && prevDay != "" {
		o.record(ctx, "day_rolled", "", "", map[string]any{"prev_day": prevDay})
		if o.archiver != nil {
			go o.archiveDay(prevDay)
		}
	}

	o.maybeHeartbeat(ctx, now)

	// 2. Risk gate.
	if active, reason := o.gate.CheckAndMaybeHalt(); !active {
		o.lastAction = "halted: " + reason
		o.notify(ctx, "halted", "Trading halted", reason)
		return
	}

	// 3. Manage the open position, if any.
	if o.lifecycle.Position() != nil {
		o.manageOpenPosition(ctx)
		return
	}

	// 4-6. Flat: hunt for an entry.
	o.huntEntry(ctx)
}

// Shutdown closes any open position before the process exits so no position
// outlives the bot unattended. The returned error is the close submission
// error, if any; the position is flat either way (fail-safe-closed).
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	pos := o.lifecycle.Position()
	if pos == nil {
		return nil
	}

	pnl, err := o.lifecycle.Close(ctx, ExitReasonShutdown)
	o.lastAction = "closed (shutdown)"
	detail := map[string]any{"reason": ExitReasonShutdown, "pnl": pnl}
	if err != nil {
		o.lastError = err.Error()
		detail["error"] = err.Error()
		o.notify(ctx, "error", "Exit needs review", err.Error())
	}
	o.record(ctx, "position_closed", pos.MarketID, pos.TokenID, detail)
	o.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s: shutdown, pnl %.4f USDC", pos.MarketID, pos.Side, pnl))
	return err
}

// Status returns a consistent snapshot for the HTTP status surface.
func (o *Orchestrator) Status() domain.BotStatus {
	o.mu.Lock()
	defer o.mu.Unlock()

	state := o.gate.State()
	return domain.BotStatus{
		Running:       o.running,
		DryRun:        o.cfg.DryRun,
		LastHeartbeat: o.lastHeartbeat,
		LastError:     o.lastError,
		LastPick:      o.lastPick,
		LastAction:    o.lastAction,
		Position:      o.lifecycle.Position(),
		DayPnLEst:     state.RealizedPnL,
		Halted:        state.Halted,
		TradesToday:   state.TradesExecutedToday,
	}
}

// --------------------------------------------------------------------------
// Tick phases
// --------------------------------------------------------------------------

func (o *Orchestrator) manageOpenPosition(ctx context.Context) {
	reason, err := o.lifecycle.CheckExit(ctx)
	if err != nil {
		// Skip the tick; the next one retries with a fresh book.
		o.lastError = err.Error()
		o.logger.WarnContext(ctx, "exit check skipped", slog.Any("error", err))
		return
	}
	if reason == "" {
		o.lastAction = "holding"
		return
	}

	pos := o.lifecycle.Position()
	pnl, err := o.lifecycle.Close(ctx, reason)
	o.lastAction = fmt.Sprintf("closed (%s)", reason)
	detail := map[string]any{
		"reason": reason,
		"pnl":    pnl,
	}
	if err != nil {
		o.lastError = err.Error()
		detail["error"] = err.Error()
		o.notify(ctx, "error", "Exit needs review", err.Error())
	}
	o.record(ctx, "position_closed", pos.MarketID, pos.TokenID, detail)
	o.notify(ctx, "position_closed", "Position closed",
		fmt.Sprintf("%s %s: %s, pnl %.4f USDC", pos.MarketID, pos.Side, reason, pnl))
}

func (o *Orchestrator) huntEntry(ctx context.Context) {
	markets, err := o.fetchCatalog(ctx)
	if err != nil {
		o.lastError = err.Error()
		o.logger.WarnContext(ctx, "catalog fetch failed", slog.Any("error", err))
		return
	}

	shortlist := o.shortlist(markets)
	quotes := o.fetchQuotes(ctx, shortlist)

	candidates := ScoreMarkets(o.cfg.Scorer, shortlist, quotes)
	if len(candidates) == 0 {
		o.lastAction = "no entry signal"
		return
	}

	for _, c := range candidates {
		sel, ok := SelectSide(o.cfg.Selector, c)
		if !ok {
			continue
		}
		o.lastPick = fmt.Sprintf("%s (%s @ %.3f)", c.Market.Question, sel.Side, sel.EntryPrice)

		pos, err := o.lifecycle.Open(ctx, c, sel)
		if err != nil {
			o.lastError = err.Error()
			if errors.Is(err, domain.ErrInvariantViolation) {
				o.lastAction = "invariant violation"
				o.notify(ctx, "error", "Invariant violation", err.Error())
				o.record(ctx, "invariant_violation", sel.MarketID, sel.TokenID, map[string]any{"error": err.Error()})
				return
			}
			o.lastAction = "entry rejected"
			o.logger.WarnContext(ctx, "entry rejected",
				slog.String("market_id", sel.MarketID),
				slog.Any("error", err),
			)
			o.record(ctx, "entry_rejected", sel.MarketID, sel.TokenID, map[string]any{"error": err.Error()})
			return
		}

		o.lastAction = fmt.Sprintf("opened %s %s", pos.MarketID, pos.Side)
		o.record(ctx, "position_opened", pos.MarketID, pos.TokenID, map[string]any{
			"side":        pos.Side,
			"entry_price": pos.EntryPrice,
			"size":        pos.Size,
			"tp_order_id": pos.TakeProfitOrderID,
		})
		o.notify(ctx, "position_opened", "Position opened",
			fmt.Sprintf("%s %s @ %.3f, size %.2f", pos.MarketID, pos.Side, pos.EntryPrice, pos.Size))
		return
	}

	o.lastAction = "no entry signal"
}

// --------------------------------------------------------------------------
// Data plumbing
// --------------------------------------------------------------------------

// fetchCatalog serves the market list from the short-lived cache when
// fresh, falling back to the Gamma API and repopulating the cache.
func (o *Orchestrator) fetchCatalog(ctx context.Context) ([]domain.Market, error) {
	if o.catalogCache != nil {
		if markets, err := o.catalogCache.GetCatalog(ctx); err == nil && len(markets) > 0 {
			return markets, nil
		}
	}

	markets, err := o.catalog.ListMarkets(ctx, catalogFetchLimit)
	if err != nil {
		return nil, err
	}

	if o.catalogCache != nil {
		if err := o.catalogCache.SetCatalog(ctx, markets); err != nil {
			o.logger.WarnContext(ctx, "catalog cache write failed", slog.Any("error", err))
		}
	}
	return markets, nil
}

// shortlist bounds book fetches: cheap filters first, then the highest-
// volume survivors, twice the final candidate count so the quote-level
// filters still have slack to drop some.
func (o *Orchestrator) shortlist(markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, m := range markets {
		if !m.WellFormed() {
			continue
		}
		if m.Volume24h < o.cfg.Scorer.MinVolume24h {
			continue
		}
		if blacklisted(m.Question, o.cfg.Scorer.Blacklist) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Volume24h != out[j].Volume24h {
			return out[i].Volume24h > out[j].Volume24h
		}
		return out[i].ID < out[j].ID
	})

	limit := o.cfg.Scorer.MaxMarkets * 2
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// fetchQuotes pulls both outcome books for each shortlisted market. Tokens
// with one-sided or unfetchable books are absent from the result; the
// scorer treats absence as ineligibility.
func (o *Orchestrator) fetchQuotes(ctx context.Context, markets []domain.Market) map[string]domain.Quote {
	quotes := make(map[string]domain.Quote, len(markets)*2)
	for _, m := range markets {
		for i := 0; i < 2; i++ {
			tokenID := m.TokenIDs[i]
			snap, err := o.books.GetOrderBook(ctx, tokenID)
			if err != nil {
				o.logger.WarnContext(ctx, "book fetch failed",
					slog.String("token_id", tokenID),
					slog.Any("error", err),
				)
				continue
			}
			quote, ok := domain.TopOfBook(snap)
			if !ok {
				continue
			}
			quotes[tokenID] = quote

			if o.quoteCache != nil {
				if err := o.quoteCache.SetQuote(ctx, quote); err != nil {
					o.logger.WarnContext(ctx, "quote cache write failed", slog.Any("error", err))
				}
			}
		}
	}
	return quotes
}

// --------------------------------------------------------------------------
// Side effects
// --------------------------------------------------------------------------

func (o *Orchestrator) maybeHeartbeat(ctx context.Context, now time.Time) {
	n := o.cfg.HeartbeatEveryNTicks
	if n <= 0 {
		return
	}
	if n != 1 && o.tickCount%n != 1 {
		return
	}
	o.lastHeartbeat = now
	o.notify(ctx, "heartbeat", "Heartbeat",
		fmt.Sprintf("alive: chain=%d dry_run=%t interval=%s trades_today=%d",
			o.cfg.ChainID, o.cfg.DryRun, o.cfg.LoopInterval, o.gate.State().TradesExecutedToday))
}

// notify is fire-and-forget; the notifier throttles duplicates itself.
func (o *Orchestrator) notify(ctx context.Context, event, title, message string) {
	if o.notifier == nil {
		return
	}
	o.notifier.Notify(ctx, event, title, message)
}

// record appends to the trade event log and the live stream, best-effort.
func (o *Orchestrator) record(ctx context.Context, event, marketID, tokenID string, detail map[string]any) {
	ev := domain.TradeEvent{
		DayKey:    o.gate.State().DayKey,
		Event:     event,
		MarketID:  marketID,
		TokenID:   tokenID,
		Detail:    detail,
		CreatedAt: o.now(),
	}
	if o.events != nil {
		if err := o.events.Append(ctx, ev); err != nil {
			o.logger.WarnContext(ctx, "event log append failed",
				slog.String("event", event),
				slog.Any("error", err),
			)
		}
	}
	if o.broadcast != nil {
		o.broadcast.Broadcast(event, ev)
	}
}

func (o *Orchestrator) archiveDay(dayKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	n, err := o.archiver.ArchiveDay(ctx, dayKey)
	if err != nil {
		o.logger.Warn("day archive failed", slog.String("day", dayKey), slog.Any("error", err))
		return
	}
	o.logger.Info("day archived", slog.String("day", dayKey), slog.Int64("events", n))
}
