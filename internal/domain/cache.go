package domain

import "context"

// CatalogCache holds a short-lived copy of the market catalog so a burst
// of ticks does not hammer the Gamma API. Implementations must honor a
// TTL of at least 10 seconds.
type CatalogCache interface {
	SetCatalog(ctx context.Context, markets []Market) error
	GetCatalog(ctx context.Context) ([]Market, error)
	Invalidate(ctx context.Context) error
}

// QuoteCache stores the most recent top-of-book quote per token.
type QuoteCache interface {
	SetQuote(ctx context.Context, q Quote) error
	GetQuote(ctx context.Context, tokenID string) (Quote, error)
	GetQuotes(ctx context.Context, tokenIDs []string) (map[string]Quote, error)
}
