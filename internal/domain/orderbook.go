package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderbookSnapshot is a full snapshot of bids and asks for an asset,
// both sides sorted best-first.
type OrderbookSnapshot struct {
	AssetID   string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// Quote is a two-sided top-of-book view for one outcome token. A Quote
// only exists when both sides of the book are populated; callers that
// cannot build one treat the outcome as unquotable for the tick.
type Quote struct {
	TokenID string
	Bid     float64
	Ask     float64
	BidSize float64
	AskSize float64
	Time    time.Time
}

// Mid returns the bid/ask midpoint.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Spread returns the ask-bid gap.
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Imbalance returns (bidSize-askSize)/(bidSize+askSize) in [-1,1],
// 0 when sizes are missing.
func (q Quote) Imbalance() float64 {
	total := q.BidSize + q.AskSize
	if total <= 0 {
		return 0
	}
	return (q.BidSize - q.AskSize) / total
}

// TopOfBook derives a Quote from a snapshot. ok is false when either
// side of the book is empty.
func TopOfBook(snap OrderbookSnapshot) (Quote, bool) {
	if len(snap.Bids) == 0 || len(snap.Asks) == 0 {
		return Quote{}, false
	}
	return Quote{
		TokenID: snap.AssetID,
		Bid:     snap.Bids[0].Price,
		Ask:     snap.Asks[0].Price,
		BidSize: snap.Bids[0].Size,
		AskSize: snap.Asks[0].Size,
		Time:    snap.Timestamp,
	}, true
}
