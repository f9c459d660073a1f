// Package engine implements the decision core of the trading daemon:
// catalog scoring, side selection, the daily risk gate, the single-position
// lifecycle, and the tick orchestrator that drives them.
package engine

import (
	"sort"
	"strings"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// spreadEps keeps the edge ratio finite on zero-spread books.
const spreadEps = 1e-6

// ScorerConfig holds the candidate filters and ranking parameters.
type ScorerConfig struct {
	MinVolume24h float64
	MaxSpread    float64
	MinPrice     float64
	MaxPrice     float64
	Blacklist    []string
	MaxMarkets   int
}

// Candidate is a market that survived filtering, with the quotes that were
// available for its outcomes at scoring time.
type Candidate struct {
	Market   domain.Market
	Quotes   [2]domain.Quote
	HasQuote [2]bool
	Score    float64
}

// ScoreMarkets filters and ranks catalog candidates. quotes maps token ID to
// the top-of-book quote; tokens with an empty book side are simply absent.
//
// It is a pure function: no I/O, no clock, inputs are not mutated. Malformed
// candidates are dropped silently, and an empty result is a valid outcome.
func ScoreMarkets(cfg ScorerConfig, markets []domain.Market, quotes map[string]domain.Quote) []Candidate {
	out := make([]Candidate, 0, len(markets))

	for _, m := range markets {
		if !m.WellFormed() {
			continue
		}
		if m.Volume24h < cfg.MinVolume24h {
			continue
		}
		if blacklisted(m.Question, cfg.Blacklist) {
			continue
		}

		c := Candidate{Market: m}
		eligible := false
		for i := 0; i < 2; i++ {
			q, ok := quotes[m.TokenIDs[i]]
			if !ok {
				continue
			}
			c.Quotes[i] = q
			c.HasQuote[i] = true
			if outcomeEligible(q, cfg.MaxSpread, cfg.MinPrice, cfg.MaxPrice) {
				eligible = true
			}
		}
		// A market is only worth ranking when at least one outcome is
		// quotable inside the spread and price-band limits.
		if !eligible {
			continue
		}

		c.Score = edgeScore(c, cfg)
		out = append(out, c)
	}

	// Volume-descending order; the edge score breaks volume ties
	// deterministically, market ID as the final tiebreak.
	sort.Slice(out, func(i, j int) bool {
		vi, vj := out[i].Market.Volume24h, out[j].Market.Volume24h
		if vi != vj {
			return vi > vj
		}
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Market.ID < out[j].Market.ID
	})

	if cfg.MaxMarkets > 0 && len(out) > cfg.MaxMarkets {
		out = out[:cfg.MaxMarkets]
	}
	return out
}

// edgeScore rewards high volume per unit of spread, weighted toward mids
// near 0.5 where binary outcomes carry the most information.
func edgeScore(c Candidate, cfg ScorerConfig) float64 {
	best := 0.0
	for i := 0; i < 2; i++ {
		if !c.HasQuote[i] {
			continue
		}
		q := c.Quotes[i]
		if !outcomeEligible(q, cfg.MaxSpread, cfg.MinPrice, cfg.MaxPrice) {
			continue
		}
		proximity := 1 - 2*abs(q.Mid()-0.5) // 1 at mid 0.5, 0 at the edges
		if proximity < 0 {
			proximity = 0
		}
		s := c.Market.Volume24h / (q.Spread() + spreadEps) * (0.5 + 0.5*proximity)
		if s > best {
			best = s
		}
	}
	return best
}

// outcomeEligible reports whether a quote sits inside the tradable window.
func outcomeEligible(q domain.Quote, maxSpread, minPrice, maxPrice float64) bool {
	if q.Spread() > maxSpread {
		return false
	}
	mid := q.Mid()
	return mid >= minPrice && mid <= maxPrice
}

// blacklisted does a case-insensitive substring match of every blacklist
// term against the market question.
func blacklisted(question string, blacklist []string) bool {
	if len(blacklist) == 0 {
		return false
	}
	lower := strings.ToLower(question)
	for _, term := range blacklist {
		term = strings.TrimSpace(strings.ToLower(term))
		if term == "" {
			continue
		}
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
