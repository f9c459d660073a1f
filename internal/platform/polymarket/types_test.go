package polymarket

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmjxzf8xqf-a11y/polymarket-trader/internal/domain"
)

func TestMarketAliasResolution(t *testing.T) {
	tests := []struct {
		name string
		body string
		want domain.Market
	}{
		{
			name: "camelCase with stringified token ids",
			body: `{"id":"m1","question":"Will it rain?","clobTokenIds":"[\"tokA\",\"tokB\"]","volume24hr":1234.5}`,
			want: domain.Market{
				ID:        "m1",
				Question:  "Will it rain?",
				TokenIDs:  [2]string{"tokA", "tokB"},
				Outcomes:  [2]string{"Yes", "No"},
				Volume24h: 1234.5,
			},
		},
		{
			name: "snake_case with array token ids and title alias",
			body: `{"id":"m2","title":"BTC above 100k","clob_token_ids":["t1","t2"],"volume_24hr":"987"}`,
			want: domain.Market{
				ID:        "m2",
				Question:  "BTC above 100k",
				TokenIDs:  [2]string{"t1", "t2"},
				Outcomes:  [2]string{"Yes", "No"},
				Volume24h: 987,
			},
		},
		{
			name: "token objects with outcome labels and name alias",
			body: `{"id":"m3","name":"Fed cuts in March","tokens":[{"token_id":"up","outcome":"Up"},{"token_id":"down","outcome":"Down"}],"volume":"55.5"}`,
			want: domain.Market{
				ID:        "m3",
				Question:  "Fed cuts in March",
				TokenIDs:  [2]string{"up", "down"},
				Outcomes:  [2]string{"Up", "Down"},
				Volume24h: 55.5,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var api APIMarket
			require.NoError(t, json.Unmarshal([]byte(tt.body), &api))
			assert.Equal(t, tt.want, api.ToDomainMarket())
		})
	}
}

func TestMarketAliasPrecedence(t *testing.T) {
	// question beats title beats name; clobTokenIds beats the other lists.
	body := `{
		"id": "m4",
		"question": "primary",
		"title": "secondary",
		"clobTokenIds": ["a","b"],
		"token_ids": ["x","y"],
		"volume24hr": 10,
		"volume": 999
	}`
	var api APIMarket
	require.NoError(t, json.Unmarshal([]byte(body), &api))

	m := api.ToDomainMarket()
	assert.Equal(t, "primary", m.Question)
	assert.Equal(t, [2]string{"a", "b"}, m.TokenIDs)
	assert.Equal(t, 10.0, m.Volume24h)
}

func TestMarketsEnvelopeShapes(t *testing.T) {
	shapes := map[string]string{
		"bare array": `[{"id":"m1"}]`,
		"markets":    `{"markets":[{"id":"m1"}]}`,
		"data":       `{"data":[{"id":"m1"}]}`,
		"results":    `{"results":[{"id":"m1"}]}`,
	}
	for name, body := range shapes {
		t.Run(name, func(t *testing.T) {
			var env marketsEnvelope
			require.NoError(t, json.Unmarshal([]byte(body), &env))
			require.Len(t, env.Markets, 1)
			assert.Equal(t, "m1", env.Markets[0].ID)
		})
	}
}

func TestFlexBoolAndFloat(t *testing.T) {
	var api APIMarket
	require.NoError(t, json.Unmarshal([]byte(`{"active":"true","volume24hr":""}`), &api))
	assert.True(t, bool(api.Active))
	assert.Zero(t, float64(api.Volume24hr))

	require.NoError(t, json.Unmarshal([]byte(`{"active":false,"volume24hr":3.5}`), &api))
	assert.False(t, bool(api.Active))
	assert.Equal(t, 3.5, float64(api.Volume24hr))
}

func TestBookSnapshotSortsBestFirst(t *testing.T) {
	book := APIBook{
		AssetID:   "tokA",
		Bids:      []APIPriceLevel{{Price: "0.40", Size: "10"}, {Price: "0.45", Size: "5"}},
		Asks:      []APIPriceLevel{{Price: "0.55", Size: "7"}, {Price: "0.50", Size: "3"}},
		Timestamp: "1709290800000",
	}

	snap := book.ToDomainSnapshot()
	require.Len(t, snap.Bids, 2)
	require.Len(t, snap.Asks, 2)
	assert.Equal(t, 0.45, snap.Bids[0].Price)
	assert.Equal(t, 0.50, snap.Asks[0].Price)
	assert.Equal(t, time.UnixMilli(1709290800000), snap.Timestamp)
}

func TestOrderResultStatusMapping(t *testing.T) {
	tests := []struct {
		apiStatus string
		success   bool
		want      domain.OrderStatus
	}{
		{"matched", true, domain.OrderStatusMatched},
		{"live", true, domain.OrderStatusOpen},
		{"open", true, domain.OrderStatusOpen},
		{"delayed", true, domain.OrderStatusPending},
		{"", true, domain.OrderStatusPending},
		{"", false, domain.OrderStatusFailed},
	}
	for _, tt := range tests {
		r := APIOrderResult{Success: tt.success, Status: tt.apiStatus, OrderID: "o1"}
		got := r.ToDomainOrderResult(domain.OrderSideBuy)
		assert.Equal(t, tt.want, got.Status, "status %q success %t", tt.apiStatus, tt.success)
		assert.Equal(t, "o1", got.OrderID)
	}
}

func TestOrderResultFillFromAmounts(t *testing.T) {
	// A matched buy gave 5 USDC for 10 shares.
	buy := APIOrderResult{Success: true, Status: "matched", MakingAmount: "5", TakingAmount: "10"}
	got := buy.ToDomainOrderResult(domain.OrderSideBuy)
	assert.InDelta(t, 0.50, got.FilledPrice, 1e-9)
	assert.InDelta(t, 10, got.FilledSize, 1e-9)

	// A matched sell gave 10 shares for 4.9 USDC.
	sell := APIOrderResult{Success: true, Status: "matched", MakingAmount: "10", TakingAmount: "4.9"}
	got = sell.ToDomainOrderResult(domain.OrderSideSell)
	assert.InDelta(t, 0.49, got.FilledPrice, 1e-9)
	assert.InDelta(t, 10, got.FilledSize, 1e-9)

	// Amounts absent: no fill is derived, the caller keeps its own fallback.
	bare := APIOrderResult{Success: true, Status: "matched"}
	got = bare.ToDomainOrderResult(domain.OrderSideBuy)
	assert.Zero(t, got.FilledPrice)
	assert.Zero(t, got.FilledSize)
}
