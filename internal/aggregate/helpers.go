package aggregate

import (
	"math/big"
)

// formatTokenAmount renders a base-unit amount as a decimal string with full precision.
func formatTokenAmount(value *big.Int, decimals uint8) string {
	if value == nil {
		return "0"
	}
	if decimals == 0 {
		return value.String()
	}
	sign := value.Sign()
	abs := new(big.Int).Abs(value)
	rat := new(big.Rat).SetFrac(abs, pow10(decimals))
	text := rat.FloatString(int(decimals))
	if sign < 0 {
		return "-" + text
	}
	return text
}

// wholeUnits converts a base-unit amount to whole tokens, reserve * 10^-decimals.
func wholeUnits(value *big.Int, decimals uint8) float64 {
	if value == nil || value.Sign() == 0 {
		return 0
	}
	f, _ := new(big.Rat).SetFrac(value, pow10(decimals)).Float64()
	return f
}

func pow10(exp uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(exp)), nil)
}
