package catalog

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultCatalogProducts(t *testing.T) {
	c := Default()
	p, ok := c.Product("exhibitor")
	require.True(t, ok)
	assert.Equal(t, Money(95000), p.Amount)
	assert.Equal(t, CategoryExhibitor, p.Category)
	assert.Equal(t, "USD", p.Currency)

	free, ok := c.Product("user_free")
	require.True(t, ok)
	assert.Equal(t, Money(0), free.Amount)

	gold, ok := c.Product("sponsor_g")
	require.True(t, ok)
	assert.Equal(t, "gold", gold.Tier)

	vip, ok := c.AddOn("vip")
	require.True(t, ok)
	assert.Equal(t, Money(2083), vip.SettlementPrice)
	assert.Equal(t, int64(500000), vip.LocalPrice)
	assert.Equal(t, "VND", vip.LocalCurrency)
	assert.Equal(t, "GAIN FAIR 2025", c.Event.Name)
}

func TestQuoteTotals(t *testing.T) {
	c := Default()
	cases := []struct {
		product string
		addOns  []string
		want    string
	}{
		{product: "exhibitor", want: "950.00"},
		{product: "exhibitor", addOns: []string{"workshop"}, want: "956.25"},
		{product: "exhibitor", addOns: []string{"vip"}, want: "970.83"},
		{product: "exhibitor", addOns: []string{"workshop", "vip"}, want: "977.08"},
		{product: "agent", addOns: []string{"workshop"}, want: "256.25"},
		{product: "user_free", want: "0.00"},
		{product: "user_free", addOns: []string{"workshop"}, want: "6.25"},
		{product: "sponsor_p", addOns: []string{"vip", "vip"}, want: "2020.83"},
	}
	for _, tc := range cases {
		q, err := c.Quote(tc.product, tc.addOns)
		require.NoError(t, err, tc.product)
		assert.Equal(t, tc.want, q.Total.String(), "%s %v", tc.product, tc.addOns)
	}
}

func TestQuoteRejectsUnknownSelections(t *testing.T) {
	c := Default()
	_, err := c.Quote("vip_lounge", nil)
	assert.True(t, errors.Is(err, ErrUnknownProduct))
	_, err = c.Quote("agent", []string{"massage"})
	assert.True(t, errors.Is(err, ErrUnknownAddOn))
}

func TestQuotePaymentRequired(t *testing.T) {
	c := Default()
	free, err := c.Quote("user_free", nil)
	require.NoError(t, err)
	assert.False(t, free.PaymentRequired())
	paid, err := c.Quote("agent", nil)
	require.NoError(t, err)
	assert.True(t, paid.PaymentRequired())
}

func TestParseMoney(t *testing.T) {
	cases := map[string]Money{
		"0":      0,
		"6.25":   625,
		"20.83":  2083,
		"950":    95000,
		"1.5":    150,
		".99":    99,
		"2.005":  201,
		"-3.10":  -310,
		" 12.3 ": 1230,
	}
	for in, want := range cases {
		got, err := ParseMoney(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	for _, bad := range []string{"", "abc", "1.2x", "1,50"} {
		_, err := ParseMoney(bad)
		assert.Error(t, err, bad)
	}
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount Money `json:"amount"`
	}{Amount: 25625})
	require.NoError(t, err)
	assert.JSONEq(t, `{"amount":256.25}`, string(b))

	var out struct {
		Amount Money `json:"amount"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"amount":977.08}`), &out))
	assert.Equal(t, Money(97708), out.Amount)
}

func TestParseRejectsBadCatalog(t *testing.T) {
	_, err := Parse([]byte("products:\n  - id: a\n    amount: 1\n    category: robot\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("products:\n  - id: a\n    amount: 1\n    category: user\n  - id: a\n    amount: 2\n    category: user\n"))
	assert.Error(t, err)
	_, err = Parse([]byte("currency: USD\nproducts:\n  - id: a\n    amount: 1\n    currency: EUR\n    category: user\n"))
	assert.Error(t, err)
}

func TestCatalogDumpLoadsBack(t *testing.T) {
	c := Default()
	b, err := yaml.Marshal(c)
	require.NoError(t, err)
	assert.Contains(t, string(b), "950.00")

	again, err := Parse(b)
	require.NoError(t, err)
	assert.Equal(t, c.Products, again.Products)
	assert.Equal(t, c.AddOns, again.AddOns)
}
