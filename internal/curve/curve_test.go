package curve

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

func TestEvaluate_ZeroAmount(t *testing.T) {
	p := DefaultParams()
	for _, supply := range []uint64{0, 1, 1000, 5_000_000} {
		got, err := Evaluate(supply, 0, p)
		require.NoError(t, err)
		assert.Zero(t, got, "supply=%d", supply)
	}
}

func TestEvaluate_InvalidParams(t *testing.T) {
	valid := DefaultParams()

	tests := []struct {
		name string
		p    Params
	}{
		{"nil A", Params{A: nil, B: valid.B, C: valid.C}},
		{"zero B", Params{A: valid.A, B: big.NewInt(0), C: valid.C}},
		{"negative C", Params{A: valid.A, B: valid.B, C: big.NewInt(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Evaluate(100, 1, tt.p)
			require.ErrorIs(t, err, domain.ErrInvalidCurveParams)
		})
	}
}

func TestEvaluate_Positive(t *testing.T) {
	p := DefaultParams()
	for _, supply := range []uint64{0, 1, 999, 50_000, 10_000_000} {
		got, err := Evaluate(supply, 1, p)
		require.NoError(t, err)
		assert.Greater(t, got, 0.0, "supply=%d", supply)
	}
}

func TestEvaluate_Additivity(t *testing.T) {
	p := DefaultParams()

	tests := []struct {
		supply, a, b uint64
	}{
		{0, 1, 1},
		{0, 100, 900},
		{1000, 1, 1},
		{1000, 500, 1500},
		{49_000, 2000, 2000},
		{1_000_000, 1, 100_000},
	}
	for _, tt := range tests {
		whole, err := Evaluate(tt.supply, tt.a+tt.b, p)
		require.NoError(t, err)
		first, err := Evaluate(tt.supply, tt.a, p)
		require.NoError(t, err)
		second, err := Evaluate(tt.supply+tt.a, tt.b, p)
		require.NoError(t, err)

		assert.InEpsilon(t, whole, first+second, 1e-9,
			"supply=%d a=%d b=%d", tt.supply, tt.a, tt.b)
	}
}

func TestEvaluate_MonotoneInAmount(t *testing.T) {
	p := DefaultParams()
	prev := 0.0
	for _, amount := range []uint64{1, 2, 10, 100, 1000, 10_000} {
		got, err := Evaluate(1000, amount, p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "amount=%d", amount)
		prev = got
	}
}

func TestEvaluate_MonotoneInSupply(t *testing.T) {
	// The sigmoid's marginal price rises with supply, so the same amount
	// costs more at a higher supply.
	p := DefaultParams()
	prev := 0.0
	for _, supply := range []uint64{0, 10, 1000, 50_000, 1_000_000} {
		got, err := Evaluate(supply, 10, p)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, prev, "supply=%d", supply)
		prev = got
	}
}

func TestSpotPrice_ApproachesCeiling(t *testing.T) {
	// Far beyond the midpoint the marginal price approaches 2*A/1e18 = 0.1.
	p := DefaultParams()
	price, err := SpotPrice(100_000_000, p)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, price, 0.001)
}

func TestCumulativeValue_ZeroSupply(t *testing.T) {
	got, err := CumulativeValue(0, DefaultParams())
	require.NoError(t, err)
	assert.Zero(t, got)
}
