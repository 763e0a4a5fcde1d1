package swap

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "1.5", want: "1.5"},
		{in: " 100 ", want: "100"},
		{in: "0.000001", want: "0.000001"},
		{in: "", wantErr: true},
		{in: "0", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "abc", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidAmount))
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)))
		})
	}
}

func TestToBaseUnits(t *testing.T) {
	assert.Equal(t, "100000000", ToBaseUnits(decimal.RequireFromString("100"), 6).String())
	assert.Equal(t, "1500000000000000000", ToBaseUnits(decimal.RequireFromString("1.5"), 18).String())
	// precision beyond the token's decimals is truncated
	assert.Equal(t, "1234567", ToBaseUnits(decimal.RequireFromString("1.2345679"), 6).String())
	assert.Equal(t, "0", ToBaseUnits(decimal.RequireFromString("0.0000001"), 6).String())
}

func TestFromBaseUnits(t *testing.T) {
	assert.True(t, FromBaseUnits(big.NewInt(50_000_000), 6).Equal(decimal.NewFromInt(50)))
	v, ok := new(big.Int).SetString("50000000000000000", 10)
	require.True(t, ok)
	assert.Equal(t, "0.05", FromBaseUnits(v, 18).String())
	assert.True(t, FromBaseUnits(nil, 18).IsZero())
}

func TestParseBaseUnits(t *testing.T) {
	v, err := ParseBaseUnits("123456789012345678901234567890")
	require.NoError(t, err)
	assert.Equal(t, "123456789012345678901234567890", v.String())

	_, err = ParseBaseUnits("1.5")
	assert.Error(t, err)
	_, err = ParseBaseUnits("")
	assert.Error(t, err)
}
