package match

import (
	"fmt"
	"math/big"
	"strings"
)

// nativeDecimals is the smallest-unit precision of the chain-native currency.
const nativeDecimals = 18

var unitScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(nativeDecimals), nil)

// ParseAmount converts a decimal string such as "0.05" into its smallest-unit
// integer representation. Amounts are captured verbatim from product config
// at order initiation, so a malformed value here indicates upstream data
// corruption and is terminal for the order.
func ParseAmount(s string) (*big.Int, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	if strings.HasPrefix(trimmed, "-") {
		return nil, fmt.Errorf("amount %q must not be negative", s)
	}
	intPart := trimmed
	fracPart := ""
	if idx := strings.IndexByte(trimmed, '.'); idx >= 0 {
		intPart, fracPart = trimmed[:idx], trimmed[idx+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnly(intPart) || (fracPart != "" && !digitsOnly(fracPart)) {
		return nil, fmt.Errorf("amount %q is not a decimal number", s)
	}
	if len(fracPart) > nativeDecimals {
		return nil, fmt.Errorf("amount %q exceeds %d decimal places", s, nativeDecimals)
	}
	whole, ok := new(big.Int).SetString(intPart, 10)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal number", s)
	}
	whole.Mul(whole, unitScale)
	if fracPart != "" {
		padded := fracPart + strings.Repeat("0", nativeDecimals-len(fracPart))
		frac, ok := new(big.Int).SetString(padded, 10)
		if !ok {
			return nil, fmt.Errorf("amount %q is not a decimal number", s)
		}
		whole.Add(whole, frac)
	}
	return whole, nil
}

func digitsOnly(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
