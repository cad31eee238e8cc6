package cart

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/inflight-sales/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var (
	coke     = model.Product{ID: 1, Name: "Coca Cola", Stock: 10, PriceUSD: dec("2.50")}
	sandwich = model.Product{ID: 2, Name: "Sandwich", Stock: 1, PriceUSD: dec("5.00")}
)

func TestLedger_AddRemoveSequences(t *testing.T) {
	tests := []struct {
		name string
		ops  string
		want int
	}{
		{name: "adds only", ops: "+++", want: 3},
		{name: "add then remove", ops: "++-", want: 1},
		{name: "remove to zero drops entry", ops: "+-", want: 0},
		{name: "removes floor at zero", ops: "+---", want: 0},
		{name: "remove on empty", ops: "--", want: 0},
		{name: "interleaved", ops: "++-+-+", want: 2},
		{name: "re-add after removal", ops: "+--++", want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			for _, op := range tt.ops {
				if op == '+' {
					require.NoError(t, l.Add(coke, coke.PriceUSD))
				} else {
					l.Remove(coke.ID, coke.PriceUSD)
				}
			}

			assert.Equal(t, tt.want, l.Quantity(coke.ID))
			if tt.want == 0 {
				assert.Equal(t, 0, l.Len(), "entry with zero quantity must be removed")
				return
			}
			entries := l.Entries()
			require.Len(t, entries, 1)
			assert.True(t, dec("2.50").Mul(decimal.NewFromInt(int64(tt.want))).Equal(entries[0].Total))
		})
	}
}

func TestLedger_AddRejectsWhenStockExhausted(t *testing.T) {
	l := NewLedger()

	require.NoError(t, l.Add(sandwich, sandwich.PriceUSD))
	err := l.Add(sandwich, sandwich.PriceUSD)

	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, 1, l.Quantity(sandwich.ID))

	empty := model.Product{ID: 3, Stock: 0}
	assert.ErrorIs(t, l.Add(empty, dec("1.00")), ErrOutOfStock)
	assert.Equal(t, 1, l.Len())
}

func TestLedger_Summary(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(sandwich, sandwich.PriceUSD))

	s := l.Summary()
	assert.Equal(t, "10.00", s.Total.StringFixed(2))
	assert.Equal(t, 3, s.ItemCount)

	l.Remove(sandwich.ID, sandwich.PriceUSD)
	s = l.Summary()
	assert.Equal(t, "5.00", s.Total.StringFixed(2))
	assert.Equal(t, 2, s.ItemCount)
}

func TestLedger_RepriceKeepsQuantities(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(sandwich, sandwich.PriceUSD))

	prices := map[model.ProductID]decimal.Decimal{1: dec("2.13"), 2: dec("4.25")}
	l.Reprice(func(id model.ProductID) (decimal.Decimal, bool) {
		p, ok := prices[id]
		return p, ok
	})

	assert.Equal(t, 2, l.Quantity(1))
	assert.Equal(t, 1, l.Quantity(2))
	assert.Equal(t, "8.51", l.Summary().Total.StringFixed(2))

	delete(prices, 2)
	l.Reprice(func(id model.ProductID) (decimal.Decimal, bool) {
		p, ok := prices[id]
		return p, ok
	})
	assert.Equal(t, 1, l.Len())
}

func TestHandoff_RoundTrip(t *testing.T) {
	l := NewLedger()
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(coke, coke.PriceUSD))
	require.NoError(t, l.Add(sandwich, sandwich.PriceUSD))

	h := l.Handoff(model.CurrencyUSD, model.CustomerCrew)
	data, err := json.Marshal(h)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"cart": [
			{"productId": 1, "quantity": 2, "totalPrice": "5.00"},
			{"productId": 2, "quantity": 1, "totalPrice": "5.00"}
		],
		"currency": "USD",
		"customerType": "CREW"
	}`, string(data))

	var got Handoff
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, model.CurrencyUSD, got.Currency)
	assert.Equal(t, model.CustomerCrew, got.CustomerType)
	require.Len(t, got.Entries, 2)
	for i, e := range h.Entries {
		assert.Equal(t, e.ProductID, got.Entries[i].ProductID)
		assert.Equal(t, e.Quantity, got.Entries[i].Quantity)
		assert.True(t, e.Total.Equal(got.Entries[i].Total))
	}
}

func TestHandoff_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "zero quantity", body: `{"cart":[{"productId":1,"quantity":0,"totalPrice":"0.00"}],"currency":"USD"}`},
		{name: "duplicate product", body: `{"cart":[{"productId":1,"quantity":1,"totalPrice":"1.00"},{"productId":1,"quantity":1,"totalPrice":"1.00"}],"currency":"USD"}`},
		{name: "unknown currency", body: `{"cart":[],"currency":"JPY"}`},
		{name: "bad total", body: `{"cart":[{"productId":1,"quantity":1,"totalPrice":"x"}],"currency":"USD"}`},
		{name: "not json", body: `{`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var h Handoff
			err := json.Unmarshal([]byte(tt.body), &h)
			require.Error(t, err)
			if tt.name != "not json" {
				assert.ErrorIs(t, err, ErrInvalidHandoff)
			}
		})
	}
}
