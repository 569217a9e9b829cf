// Package balance converts between decimal strings and smallest units and
// reads custodied balances from the ledger.
package balance

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/holiman/uint256"
)

// Asset describes a supported unit of value.
type Asset struct {
	Symbol   string
	Decimals uint8
	// MinTip is the smallest tip in units; zero disables the check.
	MinTip uint64
	// Native is true for the chain's own coin.
	Native bool
}

var (
	USDC = Asset{Symbol: "USDC", Decimals: 6, MinTip: 1_000}
	SOL  = Asset{Symbol: "SOL", Decimals: 9, Native: true}
)

// Assets lists every supported asset.
var Assets = []Asset{USDC, SOL}

// AssetBySymbol resolves a case-insensitive symbol. Empty selects USDC.
func AssetBySymbol(symbol string) (Asset, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return USDC, nil
	}
	for _, a := range Assets {
		if a.Symbol == s {
			return a, nil
		}
	}
	return Asset{}, fmt.Errorf("%w: unsupported asset %q", common.ErrValidation, symbol)
}

// Parse converts a decimal string to units of a.
func (a Asset) Parse(s string) (uint64, error) {
	return ParseAmount(s, a.Decimals)
}

// Format renders units of a as a decimal string.
func (a Asset) Format(units uint64) string {
	return FormatAmount(units, a.Decimals)
}

// String renders units with the asset symbol, e.g. "1.5 USDC".
func (a Asset) String(units uint64) string {
	return a.Format(units) + " " + a.Symbol
}

// ParseAmount converts a non-negative decimal string into smallest units.
// Digits beyond the asset precision are truncated toward zero. Values that
// do not fit in 64 bits are rejected.
func ParseAmount(s string, decimals uint8) (uint64, error) {
	s = strings.TrimSpace(s)
	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return 0, fmt.Errorf("%w: empty amount", common.ErrValidation)
	}
	if !digitsOnly(whole) || !digitsOnly(frac) {
		return 0, fmt.Errorf("%w: invalid amount %q", common.ErrValidation, s)
	}

	if len(frac) > int(decimals) {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	digits := strings.TrimLeft(whole+frac, "0")
	if digits == "" {
		return 0, nil
	}
	v, err := uint256.FromDecimal(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid amount %q", common.ErrValidation, s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("%w: amount %q out of range", common.ErrValidation, s)
	}
	return v.Uint64(), nil
}

// FormatAmount renders units as a decimal string without trailing zeros.
func FormatAmount(units uint64, decimals uint8) string {
	if decimals == 0 {
		return uint256.NewInt(units).Dec()
	}
	scale := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(decimals)))
	q, r := new(uint256.Int).DivMod(uint256.NewInt(units), scale, new(uint256.Int))

	frac := r.Dec()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		return q.Dec()
	}
	return q.Dec() + "." + frac
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
