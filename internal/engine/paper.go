package engine

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// PaperGateway is the dry-run order gateway. The full decision pipeline
// runs against it unchanged: IOC orders fill immediately at their limit
// price, resting orders acknowledge as open, and cancels always succeed.
// Nothing ever reaches the exchange.
type PaperGateway struct {
	logger *slog.Logger
}

// NewPaperGateway creates a simulated gateway.
func NewPaperGateway(logger *slog.Logger) *PaperGateway {
	return &PaperGateway{
		logger: logger.With(slog.String("component", "paper_gateway")),
	}
}

// PostOrder simulates submission: FAK orders match at the limit price,
// anything else rests as open.
func (p *PaperGateway) PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	result := domain.OrderResult{
		Success: true,
		OrderID: "paper-" + uuid.NewString(),
	}
	if order.Type == domain.OrderTypeFAK {
		result.Status = domain.OrderStatusMatched
		result.FilledPrice = order.Price()
		result.FilledSize = order.Size()
	} else {
		result.Status = domain.OrderStatusOpen
	}

	p.logger.InfoContext(ctx, "paper order",
		slog.String("side", string(order.Side)),
		slog.String("type", string(order.Type)),
		slog.String("token_id", order.TokenID),
		slog.Float64("price", order.Price()),
		slog.Float64("size", order.Size()),
		slog.String("status", string(result.Status)),
	)
	return result, nil
}

// CancelOrder always succeeds in paper mode.
func (p *PaperGateway) CancelOrder(ctx context.Context, orderID string) error {
	p.logger.InfoContext(ctx, "paper cancel", slog.String("order_id", orderID))
	return nil
}

// Compile-time interface check.
var _ OrderGateway = (*PaperGateway)(nil)
