package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeCandles(t *testing.T) {
	t.Run("sorts and resolves duplicates to last occurrence", func(t *testing.T) {
		in := []Candle{
			{Time: 5, Open: 1, High: 2, Low: 1, Close: 1.5},
			{Time: 3, Open: 1, High: 2, Low: 1, Close: 1.2},
			{Time: 5, Open: 1, High: 100, Low: 1, Close: 99},
		}

		out := NormalizeCandles(in)

		require.Len(t, out, 2)
		assert.Equal(t, int64(3), out[0].Time)
		assert.Equal(t, int64(5), out[1].Time)
		assert.Equal(t, 99.0, out[1].Close)
	})

	t.Run("empty input yields empty output", func(t *testing.T) {
		out := NormalizeCandles(nil)
		assert.NotNil(t, out)
		assert.Empty(t, out)
	})

	t.Run("does not mutate input", func(t *testing.T) {
		in := []Candle{{Time: 2, Close: 2}, {Time: 1, Close: 1}}
		_ = NormalizeCandles(in)
		assert.Equal(t, int64(2), in[0].Time)
	})

	t.Run("already sorted input is unchanged", func(t *testing.T) {
		in := []Candle{{Time: 1, Close: 1}, {Time: 2, Close: 2}, {Time: 3, Close: 3}}
		assert.Equal(t, in, NormalizeCandles(in))
	})
}

func TestCandle_ValidClose(t *testing.T) {
	tests := []struct {
		name  string
		close float64
		want  bool
	}{
		{name: "positive", close: 1.5, want: true},
		{name: "zero", close: 0, want: false},
		{name: "negative", close: -1, want: false},
		{name: "nan", close: math.NaN(), want: false},
		{name: "inf", close: math.Inf(1), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Candle{Close: tt.close}.ValidClose())
		})
	}
}
