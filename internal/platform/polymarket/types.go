package polymarket

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

// The Gamma API is served in several vintages that disagree on field names
// and scalar encodings. All alias tolerance lives in this file; the rest of
// the codebase only ever sees domain types.

// flexBool unmarshals from JSON bool or string ("true"/"false") so Gamma API
// responses work whether "active" is sent as bool or string.
type flexBool bool

func (f *flexBool) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = flexBool(b)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*f = flexBool(strings.EqualFold(s, "true") || s == "1")
	return nil
}

// flexFloat unmarshals from a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	var v float64
	if err := json.Unmarshal(data, &v); err == nil {
		*f = flexFloat(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// flexStrings unmarshals from a JSON array of strings or from a string that
// itself contains a JSON-encoded array (Gamma encodes clobTokenIds both ways).
type flexStrings []string

func (f *flexStrings) UnmarshalJSON(data []byte) error {
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*f = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if strings.TrimSpace(s) == "" {
		*f = nil
		return nil
	}
	if err := json.Unmarshal([]byte(s), &arr); err != nil {
		return err
	}
	*f = arr
	return nil
}

// --------------------------------------------------------------------------
// Gamma API DTOs
// --------------------------------------------------------------------------

// APIMarket represents a market as returned by the Gamma API. Alias columns
// exist because different deployments emit different field names for the
// same value; ToDomainMarket resolves them in a fixed order.
type APIMarket struct {
	ID     string   `json:"id"`
	Slug   string   `json:"slug"`
	Active flexBool `json:"active"`
	Closed bool     `json:"closed"`

	// Question aliases.
	Question string `json:"question"`
	Title    string `json:"title"`
	Name     string `json:"name"`

	// Token ID aliases. Each may arrive as an array or a JSON-encoded string.
	ClobTokenIDs      flexStrings `json:"clobTokenIds"`
	ClobTokenIDsSnake flexStrings `json:"clob_token_ids"`
	TokenIDs          flexStrings `json:"tokenIds"`
	TokenIDsSnake     flexStrings `json:"token_ids"`

	// CLOB-style token objects, when present.
	Tokens []Token `json:"tokens"`

	// Outcome labels, JSON-encoded string or array.
	Outcomes flexStrings `json:"outcomes"`

	// 24h volume aliases.
	Volume24hr      flexFloat `json:"volume24hr"`
	Volume24hrSnake flexFloat `json:"volume_24hr"`
	Volume24h       flexFloat `json:"volume24h"`
	Volume          flexFloat `json:"volume"`
}

// Token represents a token entry inside the Gamma API market response.
type Token struct {
	TokenID string `json:"token_id"`
	Outcome string `json:"outcome"`
	Winner  bool   `json:"winner"`
}

// marketsEnvelope tolerates both a bare top-level array and an object
// wrapping the list under "markets", "data", or "results".
type marketsEnvelope struct {
	Markets []APIMarket
}

func (e *marketsEnvelope) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return json.Unmarshal(data, &e.Markets)
	}
	var obj struct {
		Markets []APIMarket `json:"markets"`
		Data    []APIMarket `json:"data"`
		Results []APIMarket `json:"results"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	switch {
	case len(obj.Markets) > 0:
		e.Markets = obj.Markets
	case len(obj.Data) > 0:
		e.Markets = obj.Data
	default:
		e.Markets = obj.Results
	}
	return nil
}

// ToDomainMarket converts a Gamma APIMarket to a domain.Market, resolving
// field aliases. It never drops candidates itself; malformed markets are
// filtered downstream by the scorer.
func (m *APIMarket) ToDomainMarket() domain.Market {
	dm := domain.Market{
		ID:       m.ID,
		Question: firstNonEmpty(m.Question, m.Title, m.Name),
		Slug:     m.Slug,
		Outcomes: [2]string{"Yes", "No"},
	}

	tokenIDs := firstNonEmptyList(m.ClobTokenIDs, m.ClobTokenIDsSnake, m.TokenIDs, m.TokenIDsSnake)
	if len(tokenIDs) == 0 && len(m.Tokens) > 0 {
		for _, tok := range m.Tokens {
			tokenIDs = append(tokenIDs, tok.TokenID)
		}
	}
	for i := 0; i < len(tokenIDs) && i < 2; i++ {
		dm.TokenIDs[i] = tokenIDs[i]
	}

	for i := 0; i < len(m.Outcomes) && i < 2; i++ {
		if m.Outcomes[i] != "" {
			dm.Outcomes[i] = m.Outcomes[i]
		}
	}
	for i, tok := range m.Tokens {
		if i >= 2 {
			break
		}
		if tok.Outcome != "" {
			dm.Outcomes[i] = tok.Outcome
		}
	}

	dm.Volume24h = firstPositive(
		float64(m.Volume24hr),
		float64(m.Volume24hrSnake),
		float64(m.Volume24h),
		float64(m.Volume),
	)

	return dm
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstNonEmptyList(lists ...flexStrings) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}

func firstPositive(vals ...float64) float64 {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

// --------------------------------------------------------------------------
// CLOB API DTOs
// --------------------------------------------------------------------------

// APIBook is the order book returned by GET /book on the CLOB API.
type APIBook struct {
	AssetID   string          `json:"asset_id"`
	Market    string          `json:"market"`
	Bids      []APIPriceLevel `json:"bids"`
	Asks      []APIPriceLevel `json:"asks"`
	Timestamp string          `json:"timestamp"`
	Hash      string          `json:"hash"`
}

// APIPriceLevel is a single bid/ask level in the CLOB book response.
type APIPriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// ToDomainSnapshot converts an APIBook to a best-first domain snapshot.
// The API does not guarantee level ordering, so both sides are re-sorted.
func (b *APIBook) ToDomainSnapshot() domain.OrderbookSnapshot {
	snap := domain.OrderbookSnapshot{AssetID: b.AssetID}

	for _, lvl := range b.Bids {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Bids = append(snap.Bids, domain.PriceLevel{Price: p, Size: s})
	}
	for _, lvl := range b.Asks {
		p, _ := strconv.ParseFloat(lvl.Price, 64)
		s, _ := strconv.ParseFloat(lvl.Size, 64)
		snap.Asks = append(snap.Asks, domain.PriceLevel{Price: p, Size: s})
	}
	sort.Slice(snap.Bids, func(i, j int) bool { return snap.Bids[i].Price > snap.Bids[j].Price })
	sort.Slice(snap.Asks, func(i, j int) bool { return snap.Asks[i].Price < snap.Asks[j].Price })

	if ts, err := strconv.ParseInt(b.Timestamp, 10, 64); err == nil {
		// The CLOB sends millisecond epochs.
		snap.Timestamp = time.UnixMilli(ts)
	} else if t, err := time.Parse(time.RFC3339, b.Timestamp); err == nil {
		snap.Timestamp = t
	} else {
		snap.Timestamp = time.Now()
	}

	return snap
}

// APIOrderResult is the response from placing an order via the CLOB API.
type APIOrderResult struct {
	Success      bool   `json:"success"`
	ErrorMsg     string `json:"errorMsg,omitempty"`
	OrderID      string `json:"orderID,omitempty"`
	Status       string `json:"status,omitempty"`
	TransactID   string `json:"transactID,omitempty"`
	TakingAmount string `json:"takingAmount,omitempty"`
	MakingAmount string `json:"makingAmount,omitempty"`
}

// ToDomainOrderResult converts an APIOrderResult to a domain.OrderResult.
// side is the submitted order's side; it decides which of the two reported
// amounts is USDC and which is shares when deriving the fill price.
func (r *APIOrderResult) ToDomainOrderResult(side domain.OrderSide) domain.OrderResult {
	result := domain.OrderResult{
		Success: r.Success,
		OrderID: r.OrderID,
		Message: r.ErrorMsg,
	}

	switch r.Status {
	case "live", "open":
		result.Status = domain.OrderStatusOpen
	case "matched":
		result.Status = domain.OrderStatusMatched
	case "delayed":
		result.Status = domain.OrderStatusPending
	default:
		if r.Success {
			result.Status = domain.OrderStatusPending
		} else {
			result.Status = domain.OrderStatusFailed
		}
	}

	// A buy maker gives USDC and takes shares; a sell maker gives shares
	// and takes USDC.
	making := parseAmount(r.MakingAmount)
	taking := parseAmount(r.TakingAmount)
	if making > 0 && taking > 0 {
		if side == domain.OrderSideBuy {
			result.FilledSize = taking
			result.FilledPrice = making / taking
		} else {
			result.FilledSize = making
			result.FilledPrice = taking / making
		}
	}

	return result
}

func parseAmount(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
