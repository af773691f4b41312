package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"btcusdt":       "BTC/USDT",
		"BTC/USDC:USDC": "BTC/USDC",
		" eth/usdt ":    "ETH/USDT",
		"1000PEPEUSDT":  "1000PEPE/USDT",
		"kPEPE":         "KPEPE",
		"":              "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Bybit.ToExchange("BTC/USDT"))
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc/usdt:usdt"))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))
	assert.Equal(t, FormatBybit, Bybit.Format())

	assert.Equal(t, "BTC", Hyperliquid.ToExchange("BTC/USDC"))
	assert.Equal(t, "BTC", Hyperliquid.ToExchange("btc"))
	assert.Equal(t, "BTC/USDC", Hyperliquid.FromExchange("BTC"))
	assert.Equal(t, "BTC/USDC", Hyperliquid.FromExchange("BTC/USDC:USDC"))
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid("BTCUSDT"))
	assert.True(t, IsValid("eth/usdc:usdc"))
	assert.False(t, IsValid("BTC"))
	assert.False(t, IsValid(""))
	assert.Equal(t, "ETHUSDT", Parse("ETH/USDT").Concat())
	assert.Empty(t, Parse("BTC").Concat())
}
