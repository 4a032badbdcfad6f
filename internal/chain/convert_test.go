package chain

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeiToEth(t *testing.T) {
	oneEth, ok := new(big.Int).SetString("1000000000000000000", 10)
	require.True(t, ok)

	assert.Equal(t, 1.0, WeiToEth(oneEth))
	assert.Equal(t, 0.0, WeiToEth(nil))
	assert.Equal(t, 0.0, WeiToEth(new(big.Int)))

	halfEth, _ := new(big.Int).SetString("500000000000000000", 10)
	assert.Equal(t, 0.5, WeiToEth(halfEth))
}

func TestEthToWeiRoundTrip(t *testing.T) {
	for _, eth := range []float64{0.0001, 0.5125, 1, 42.75} {
		back := WeiToEth(EthToWei(eth))
		assert.InEpsilon(t, eth, back, 1e-12)
	}

	assert.Equal(t, int64(0), EthToWei(0).Int64())
	assert.Equal(t, int64(0), EthToWei(-3).Int64())
}

func TestFixedToFloatRates(t *testing.T) {
	// 0.02 in 18-decimal fixed point.
	fee, _ := new(big.Int).SetString("20000000000000000", 10)
	assert.InDelta(t, 0.02, FixedToFloat(fee), 1e-15)

	// 0.10 in 18-decimal fixed point.
	transfer, _ := new(big.Int).SetString("100000000000000000", 10)
	assert.InDelta(t, 0.10, FixedToFloat(transfer), 1e-15)
}
