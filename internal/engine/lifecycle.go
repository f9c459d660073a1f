package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// CatalogSource lists tradable markets.
type CatalogSource interface {
	ListMarkets(ctx context.Context, limit int) ([]domain.Market, error)
}

// BookSource serves order books, best-first on both sides.
type BookSource interface {
	GetOrderBook(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error)
}

// OrderGateway submits and cancels orders on the exchange.
type OrderGateway interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
}

// Exit reasons reported by CheckExit and Close.
const (
	ExitReasonStopLoss = "stop_loss"
	ExitReasonMaxHold  = "max_hold"
	ExitReasonShutdown = "shutdown"
)

// LifecycleConfig holds position sizing and exit parameters.
type LifecycleConfig struct {
	Wallet            string
	OrderNotionalUSDC float64
	TakeProfitPct     float64 // 0 disables the resting take-profit order
	StopLossPct       float64
	MaxHold           time.Duration
	CloseSizeFraction float64
}

// Lifecycle manages the single live position: opening with an IOC buy plus
// an optional resting take-profit, exit checks, and fail-safe closing. It is
// not safe for concurrent use; the tick loop owns it.
type Lifecycle struct {
	cfg     LifecycleConfig
	gateway OrderGateway
	books   BookSource
	gate    *RiskGate
	logger  *slog.Logger
	now     func() time.Time

	position *domain.Position
}

// NewLifecycle creates a flat lifecycle manager.
func NewLifecycle(cfg LifecycleConfig, gateway OrderGateway, books BookSource, gate *RiskGate, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		cfg:     cfg,
		gateway: gateway,
		books:   books,
		gate:    gate,
		logger:  logger.With(slog.String("component", "lifecycle")),
		now:     time.Now,
	}
}

// Position returns a copy of the live position, or nil when flat.
func (l *Lifecycle) Position() *domain.Position {
	if l.position == nil {
		return nil
	}
	p := *l.position
	return &p
}

// Open enters the selected side with an IOC buy sized as
// notional / entryPrice. On fill it places a resting GTC take-profit sell
// at entry * (1 + TakeProfitPct) and records the position.
//
// Calling Open while a position is held is an invariant violation: trading
// halts for the day and the held position is left untouched. A non-filled
// entry returns ErrEntryRejected and does not count against the daily cap.
func (l *Lifecycle) Open(ctx context.Context, c Candidate, sel Selection) (domain.Position, error) {
	if l.position != nil {
		l.gate.HaltTrading("open requested while a position is held")
		return domain.Position{}, fmt.Errorf("engine: open %s: %w: position already open on market %s",
			sel.MarketID, domain.ErrInvariantViolation, l.position.MarketID)
	}
	if active, reason := l.gate.CheckAndMaybeHalt(); !active {
		return domain.Position{}, fmt.Errorf("engine: open %s: gate halted: %s", sel.MarketID, reason)
	}
	if sel.EntryPrice <= 0 {
		return domain.Position{}, fmt.Errorf("engine: open %s: %w: entry price %.4f", sel.MarketID, domain.ErrInvalidOrder, sel.EntryPrice)
	}

	size := l.cfg.OrderNotionalUSDC / sel.EntryPrice
	entry := buildOrder(l.cfg.Wallet, sel.MarketID, sel.TokenID, domain.OrderSideBuy, domain.OrderTypeFAK, sel.EntryPrice, size, l.now())

	result, err := l.gateway.PostOrder(ctx, entry)
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: open %s: %w: %w", sel.MarketID, domain.ErrEntryRejected, err)
	}
	if !result.Success || result.Status != domain.OrderStatusMatched {
		return domain.Position{}, fmt.Errorf("engine: open %s: %w: status=%s msg=%s",
			sel.MarketID, domain.ErrEntryRejected, result.Status, result.Message)
	}

	fillPrice := result.FilledPrice
	if fillPrice <= 0 {
		fillPrice = sel.EntryPrice
	}
	fillSize := result.FilledSize
	if fillSize <= 0 {
		fillSize = size
	}

	pos := domain.Position{
		MarketID:   sel.MarketID,
		TokenID:    sel.TokenID,
		Side:       sel.Side,
		EntryPrice: fillPrice,
		Size:       fillSize,
		OpenedAt:   l.now(),
	}

	// The resting take-profit is the only take-profit mechanism: exits are
	// not polled against the target, so losing this order means the position
	// exits via stop-loss or max-hold only.
	if l.cfg.TakeProfitPct > 0 {
		tpPrice := fillPrice * (1 + l.cfg.TakeProfitPct)
		tp := buildOrder(l.cfg.Wallet, sel.MarketID, sel.TokenID, domain.OrderSideSell, domain.OrderTypeGTC, tpPrice, fillSize, l.now())
		tpResult, err := l.gateway.PostOrder(ctx, tp)
		if err != nil || !tpResult.Success {
			l.logger.WarnContext(ctx, "take-profit order not placed",
				slog.String("market_id", sel.MarketID),
				slog.Float64("tp_price", tpPrice),
				slog.Any("error", err),
			)
		} else {
			pos.TakeProfitOrderID = tpResult.OrderID
		}
	}

	l.position = &pos
	l.gate.RecordOpen()

	l.logger.InfoContext(ctx, "position opened",
		slog.String("market_id", pos.MarketID),
		slog.String("question", c.Market.Question),
		slog.String("side", pos.Side),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size", pos.Size),
		slog.String("tp_order_id", pos.TakeProfitOrderID),
	)

	return pos, nil
}

// CheckExit fetches the held token's book and decides whether to exit.
// Priority: stop-loss on mid first, then max-hold age. A book fetch failure
// returns an error and the tick is skipped; holding one more interval is
// safer than exiting on a stale price.
func (l *Lifecycle) CheckExit(ctx context.Context) (reason string, err error) {
	if l.position == nil {
		return "", nil
	}

	snap, err := l.books.GetOrderBook(ctx, l.position.TokenID)
	if err != nil {
		return "", fmt.Errorf("engine: check exit: %w", err)
	}
	quote, ok := domain.TopOfBook(snap)
	if !ok {
		return "", fmt.Errorf("engine: check exit: %w: one-sided book for %s", domain.ErrUpstreamFetch, l.position.TokenID)
	}

	stopLevel := l.position.EntryPrice * (1 - l.cfg.StopLossPct)
	if quote.Mid() <= stopLevel {
		return ExitReasonStopLoss, nil
	}
	if l.position.Age(l.now()) >= l.cfg.MaxHold {
		return ExitReasonMaxHold, nil
	}
	return "", nil
}

// Close exits the held position: cancel the resting take-profit
// (best-effort), sell the configured fraction of the size IOC at the
// current bid, and book the realized PnL into the day ledger.
//
// Close is fail-safe-closed: whatever goes wrong with the sell, the
// position is marked flat and PnL is recorded best-effort, because a
// position the engine believes is open but the exchange closed is worse
// than the reverse. The returned error (wrapping ErrExitSubmission) tells
// the caller the exit needs manual review.
func (l *Lifecycle) Close(ctx context.Context, reason string) (pnl float64, err error) {
	if l.position == nil {
		return 0, nil
	}
	pos := *l.position

	if pos.TakeProfitOrderID != "" {
		if cancelErr := l.gateway.CancelOrder(ctx, pos.TakeProfitOrderID); cancelErr != nil {
			l.logger.WarnContext(ctx, "take-profit cancel failed",
				slog.String("order_id", pos.TakeProfitOrderID),
				slog.Any("error", cancelErr),
			)
		}
	}

	soldSize := pos.Size * l.cfg.CloseSizeFraction
	exitPrice := pos.EntryPrice // best-effort fallback when no bid is known

	snap, bookErr := l.books.GetOrderBook(ctx, pos.TokenID)
	if bookErr == nil {
		if quote, ok := domain.TopOfBook(snap); ok {
			exitPrice = quote.Bid
		} else if len(snap.Bids) > 0 {
			exitPrice = snap.Bids[0].Price
		}
	}

	var sellErr error
	if bookErr != nil {
		sellErr = fmt.Errorf("fetch exit bid: %w", bookErr)
	} else {
		sell := buildOrder(l.cfg.Wallet, pos.MarketID, pos.TokenID, domain.OrderSideSell, domain.OrderTypeFAK, exitPrice, soldSize, l.now())
		result, postErr := l.gateway.PostOrder(ctx, sell)
		switch {
		case postErr != nil:
			sellErr = postErr
		case !result.Success:
			sellErr = fmt.Errorf("sell rejected: status=%s msg=%s", result.Status, result.Message)
		case result.FilledPrice > 0:
			exitPrice = result.FilledPrice
		}
	}

	pnl = (exitPrice - pos.EntryPrice) * soldSize
	l.gate.RecordClose(pnl)
	l.position = nil

	l.logger.InfoContext(ctx, "position closed",
		slog.String("market_id", pos.MarketID),
		slog.String("reason", reason),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("sold_size", soldSize),
		slog.Float64("pnl", pnl),
		slog.Bool("clean", sellErr == nil),
	)

	if sellErr != nil {
		return pnl, fmt.Errorf("engine: close %s: %w: %w", pos.MarketID, domain.ErrExitSubmission, sellErr)
	}
	return pnl, nil
}

// buildOrder assembles a fixed-point limit order with the integer amounts
// the exchange settles in (both scaled by 1e6).
func buildOrder(wallet, marketID, tokenID string, side domain.OrderSide, typ domain.OrderType, price, size float64, createdAt time.Time) domain.Order {
	priceTicks := domain.Ticks(price)
	sizeUnits := domain.Units(size)

	// notional = price * size in 1e6-scaled USDC.
	notional := new(big.Int).Div(
		new(big.Int).Mul(big.NewInt(priceTicks), big.NewInt(sizeUnits)),
		big.NewInt(1e6),
	)
	quantity := big.NewInt(sizeUnits)

	o := domain.Order{
		ID:         uuid.NewString(),
		MarketID:   marketID,
		TokenID:    tokenID,
		Wallet:     wallet,
		Side:       side,
		Type:       typ,
		PriceTicks: priceTicks,
		SizeUnits:  sizeUnits,
		Status:     domain.OrderStatusPending,
		CreatedAt:  createdAt,
	}
	if side == domain.OrderSideBuy {
		// Buyer gives USDC, takes outcome tokens.
		o.MakerAmount = notional
		o.TakerAmount = quantity
	} else {
		// Seller gives outcome tokens, takes USDC.
		o.MakerAmount = quantity
		o.TakerAmount = notional
	}
	return o
}
