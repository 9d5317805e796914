package symbols

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"BTC":           "BTC",
		" btc ":         "BTC",
		"BTC-USDT":      "BTC",
		"BTC_USDT":      "BTC",
		"btcusdt":       "BTC",
		"BTC/USDC":      "BTC",
		"ETH-PERP":      "ETH",
		"BTCUSDT":       "BTC",
		"ＢＴＣ":           "BTC",
		"xbt":           "BTC",
		"1000BONK":      "1000BONK",
		"USDT":          "USDT",
		"1000BONK_USDT": "1000BONK",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestValid(t *testing.T) {
	assert.True(t, Valid("BTC"))
	assert.False(t, Valid("btc"))
	assert.False(t, Valid("BTC-USDT"))
	assert.False(t, Valid(""))
}
