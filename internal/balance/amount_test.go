package balance

import (
	"testing"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     uint64
	}{
		{"1", 6, 1_000_000},
		{"1.5", 6, 1_500_000},
		{"0.001", 6, 1_000},
		{".25", 6, 250_000},
		{"2.", 6, 2_000_000},
		{"0.0000019", 6, 1},
		{"1.9999999", 6, 1_999_999},
		{"000.000", 6, 0},
		{"1", 9, 1_000_000_000},
		{"42", 0, 42},
		{"18446744073709.551615", 6, 18446744073709551615},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAmount_Invalid(t *testing.T) {
	for _, in := range []string{"", ".", "-1", "1e6", "1.2.3", "abc", "1,5", "18446744073709.551616"} {
		_, err := ParseAmount(in, 6)
		assert.ErrorIs(t, err, common.ErrValidation, in)
	}
}

func TestFormatAmount(t *testing.T) {
	assert.Equal(t, "0", FormatAmount(0, 6))
	assert.Equal(t, "1", FormatAmount(1_000_000, 6))
	assert.Equal(t, "1.5", FormatAmount(1_500_000, 6))
	assert.Equal(t, "0.000001", FormatAmount(1, 6))
	assert.Equal(t, "0.01", FormatAmount(10_000_000, 9))
	assert.Equal(t, "7", FormatAmount(7, 0))
	assert.Equal(t, "18446744073709.551615", FormatAmount(^uint64(0), 6))
}

func TestAmountRoundTrip(t *testing.T) {
	for _, units := range []uint64{0, 1, 999, 1_000, 123_456_789, ^uint64(0)} {
		for _, a := range Assets {
			got, err := a.Parse(a.Format(units))
			require.NoError(t, err)
			assert.Equal(t, units, got)
		}
	}
}

func TestAssetBySymbol(t *testing.T) {
	a, err := AssetBySymbol("usdc")
	require.NoError(t, err)
	assert.Equal(t, USDC, a)

	a, err = AssetBySymbol("")
	require.NoError(t, err)
	assert.Equal(t, USDC, a)

	a, err = AssetBySymbol(" Sol ")
	require.NoError(t, err)
	assert.True(t, a.Native)

	_, err = AssetBySymbol("doge")
	assert.ErrorIs(t, err, common.ErrValidation)

	assert.Equal(t, "0.001 USDC", USDC.String(USDC.MinTip))
}
