package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryParse(t *testing.T) {
	r := NewRegistry("btc", "USDT")

	c, err := r.Parse(" btc ")
	require.NoError(t, err)
	assert.Equal(t, Currency("BTC"), c)

	_, err = r.Parse("ETH")
	require.ErrorIs(t, err, ErrUnsupportedCurrency)

	_, err = r.Parse("")
	require.ErrorIs(t, err, ErrUnsupportedCurrency)

	assert.Equal(t, []Currency{"BTC", "USDT"}, r.Codes())
}

func TestDefaultRegistry(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Contains("SOL"))
	assert.False(t, r.Contains("USD"))
}

func TestIsUSDPegged(t *testing.T) {
	assert.True(t, USD.IsUSDPegged())
	assert.True(t, USDT.IsUSDPegged())
	assert.False(t, Currency("EUR").IsUSDPegged())
}
