package engine

import "github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"

// SelectorConfig holds side-eligibility limits and scoring weights.
type SelectorConfig struct {
	MaxSpread       float64
	MinPrice        float64
	MaxPrice        float64
	ImbalanceWeight float64
}

// Selection is the chosen side of a market and the price an entry order
// would cross at.
type Selection struct {
	MarketID     string
	TokenID      string
	OutcomeIndex int
	Side         string // outcome label
	EntryPrice   float64
	Score        float64
}

// SelectSide picks the more attractive eligible outcome of a candidate.
// A side is eligible only when its quote exists, its spread is within
// MaxSpread, and its mid sits inside the price band. The entry price is the
// chosen side's ask. ok is false when neither side qualifies; that is a
// normal outcome, not an error.
//
// Like the scorer this is pure: quotes in, decision out.
func SelectSide(cfg SelectorConfig, c Candidate) (Selection, bool) {
	bestIdx := -1
	bestScore := 0.0

	for i := 0; i < 2; i++ {
		if !c.HasQuote[i] {
			continue
		}
		q := c.Quotes[i]
		if !outcomeEligible(q, cfg.MaxSpread, cfg.MinPrice, cfg.MaxPrice) {
			continue
		}

		s := sideScore(cfg, q)
		if bestIdx == -1 || s > bestScore {
			bestIdx = i
			bestScore = s
		}
	}

	if bestIdx == -1 {
		return Selection{}, false
	}

	q := c.Quotes[bestIdx]
	return Selection{
		MarketID:     c.Market.ID,
		TokenID:      c.Market.TokenIDs[bestIdx],
		OutcomeIndex: bestIdx,
		Side:         c.Market.Outcomes[bestIdx],
		EntryPrice:   q.Ask,
		Score:        bestScore,
	}, true
}

// sideScore combines spread tightness, mid proximity to 0.5, and top-of-book
// imbalance. The imbalance term is already normalized to [-1, 1]; its weight
// is configurable and may be zero.
func sideScore(cfg SelectorConfig, q domain.Quote) float64 {
	tightness := 1 - q.Spread()/cfg.MaxSpread
	if tightness < 0 {
		tightness = 0
	}

	proximity := 1 - 2*abs(q.Mid()-0.5)
	if proximity < 0 {
		proximity = 0
	}

	return tightness + proximity + cfg.ImbalanceWeight*q.Imbalance()
}
