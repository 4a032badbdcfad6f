package chain

import (
	"math/big"
)

// weiPerEth is 10^18 as a big.Float, shared by the converters.
var weiPerEth = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WeiToEth converts a wei amount to native units as float64. Precision loss
// beyond float64's 53-bit mantissa is acceptable at the display boundary.
func WeiToEth(wei *big.Int) float64 {
	if wei == nil || wei.Sign() == 0 {
		return 0
	}
	out, _ := new(big.Float).Quo(new(big.Float).SetInt(wei), weiPerEth).Float64()
	return out
}

// EthToWei converts native units to wei, truncating below one wei.
func EthToWei(eth float64) *big.Int {
	if eth <= 0 {
		return new(big.Int)
	}
	wei, _ := new(big.Float).Mul(big.NewFloat(eth), weiPerEth).Int(nil)
	return wei
}

// FixedToFloat converts an 18-decimal fixed-point integer to float64. Used
// for the contract's rate fields, which are small fractions.
func FixedToFloat(fixed *big.Int) float64 {
	return WeiToEth(fixed)
}
