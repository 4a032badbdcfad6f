// Package curve evaluates the sigmoid bonding curve that prices character
// shares. The curve is parameterized by three 18-decimal fixed-point
// constants: A (steepness / price ceiling), B (midpoint supply), and C
// (width). The marginal price at supply x is
//
//	p(x) = a * ((x - b) / sqrt(c + (x - b)^2) + 1)
//
// with a = A/1e18, b = B/1e18, c = C/1e18, and the cost of a supply range is
// the definite integral of p, which has the closed form antiderivative
//
//	F(x) = a * (sqrt(c + (x - b)^2) + x)
//
// All arithmetic runs on math/big.Float at 128-bit precision so that the
// fixed-point parameters survive intact; results convert to float64 only at
// the return boundary. Evaluation over contiguous ranges telescopes through
// F, so bulk and incremental pricing of the same shares agree to machine
// precision.
package curve

import (
	"fmt"
	"math/big"

	"github.com/Otaku-Wars/clashcore/internal/domain"
)

// Decimals is the fixed-point precision of curve parameters and on-chain
// amounts.
const Decimals = 18

// prec is the big.Float mantissa precision used for all curve arithmetic.
const prec = 128

// scale is 10^Decimals.
var scale = new(big.Int).Exp(big.NewInt(10), big.NewInt(Decimals), nil)

// Params holds the three curve constants as 18-decimal fixed-point integers,
// as returned by the contract's getCurve.
type Params struct {
	A *big.Int
	B *big.Int
	C *big.Int
}

// DefaultParams returns the curve constants deployed with the current
// contract: A=0.05e18, B=50000e18, C=10000000e18.
func DefaultParams() Params {
	return Params{
		A: mustFixed("50000000000000000"),
		B: mustFixed("50000000000000000000000"),
		C: mustFixed("10000000000000000000000000"),
	}
}

func mustFixed(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		panic("curve: bad fixed-point literal " + s)
	}
	return n
}

// Validate checks that all three constants are positive.
func (p Params) Validate() error {
	if p.A == nil || p.A.Sign() <= 0 {
		return fmt.Errorf("curve: parameter A must be positive: %w", domain.ErrInvalidCurveParams)
	}
	if p.B == nil || p.B.Sign() <= 0 {
		return fmt.Errorf("curve: parameter B must be positive: %w", domain.ErrInvalidCurveParams)
	}
	if p.C == nil || p.C.Sign() <= 0 {
		return fmt.Errorf("curve: parameter C must be positive: %w", domain.ErrInvalidCurveParams)
	}
	return nil
}

// Evaluate returns the cumulative cost, in native units, of the supply range
// [supply, supply+amount). It is exactly zero for amount == 0 and
// non-decreasing in both supply and amount.
func Evaluate(supply, amount uint64, p Params) (float64, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	if amount == 0 {
		return 0, nil
	}

	lo := antiderivative(supply, p)
	hi := antiderivative(supply+amount, p)
	diff := new(big.Float).SetPrec(prec).Sub(hi, lo)

	out, _ := diff.Float64()
	if out < 0 {
		// F is monotone; a negative difference can only be rounding noise at
		// the float64 boundary.
		out = 0
	}
	return out, nil
}

// SpotPrice returns the marginal cost of the next single share at the given
// supply.
func SpotPrice(supply uint64, p Params) (float64, error) {
	return Evaluate(supply, 1, p)
}

// CumulativeValue returns the canonical market value the curve alone predicts
// at the given supply, i.e. Evaluate(0, supply).
func CumulativeValue(supply uint64, p Params) (float64, error) {
	return Evaluate(0, supply, p)
}

// antiderivative computes F(x) = a*(sqrt(c + (x-b)^2) + x) for x = supply.
func antiderivative(supply uint64, p Params) *big.Float {
	scaleF := new(big.Float).SetPrec(prec).SetInt(scale)

	a := new(big.Float).SetPrec(prec).SetInt(p.A)
	a.Quo(a, scaleF)
	b := new(big.Float).SetPrec(prec).SetInt(p.B)
	b.Quo(b, scaleF)
	c := new(big.Float).SetPrec(prec).SetInt(p.C)
	c.Quo(c, scaleF)

	x := new(big.Float).SetPrec(prec).SetUint64(supply)

	// (x - b)^2
	d := new(big.Float).SetPrec(prec).Sub(x, b)
	d.Mul(d, d)

	// sqrt(c + (x-b)^2)
	root := new(big.Float).SetPrec(prec).Add(c, d)
	root.Sqrt(root)

	// a * (root + x)
	sum := root.Add(root, x)
	return sum.Mul(sum, a)
}
