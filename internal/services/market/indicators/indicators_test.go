package indicators

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

const hour = int64(3600)

// candlesFromCloses builds hourly candles starting at 2024-01-01 00:00 UTC.
func candlesFromCloses(closes ...float64) []domain.Candle {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Time:   start + int64(i)*hour,
			Open:   c,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

func rising(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 100 + float64(i)
	}
	return out
}

func falling(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1000 - float64(i)*3
	}
	return out
}

func TestSMA(t *testing.T) {
	t.Run("constant series yields the constant", func(t *testing.T) {
		candles := candlesFromCloses(42, 42, 42, 42, 42, 42)
		series := SMA(candles, 3)
		require.Len(t, series, 4)
		for _, p := range series {
			assert.Equal(t, 42.0, p.Value)
		}
	})

	t.Run("averages the trailing window", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 3, 4, 5)
		series := SMA(candles, 3)
		require.Len(t, series, 3)
		assert.Equal(t, []float64{2, 3, 4}, series.Values())
		assert.Equal(t, candles[2].Time, series[0].Time)
		assert.Equal(t, candles[4].Time, series[2].Time)
	})

	t.Run("windows with invalid closes are skipped", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 0, 4, 5, 6, 7)
		series := SMA(candles, 2)
		// windows ending at index 2 and 3 touch the zero close
		require.Len(t, series, 4)
		assert.Equal(t, candles[1].Time, series[0].Time)
		assert.Equal(t, candles[4].Time, series[1].Time)
		assert.Equal(t, 4.5, series[1].Value)
	})

	t.Run("nan close rejects the window", func(t *testing.T) {
		candles := candlesFromCloses(1, math.NaN(), 3)
		assert.Empty(t, SMA(candles, 2))
	})

	t.Run("fewer candles than period", func(t *testing.T) {
		assert.Empty(t, SMA(candlesFromCloses(1, 2), 3))
	})

	t.Run("invalid period", func(t *testing.T) {
		assert.Empty(t, SMA(candlesFromCloses(1, 2, 3), 0))
	})
}

func TestEMA(t *testing.T) {
	t.Run("first value equals SMA of first period closes", func(t *testing.T) {
		candles := candlesFromCloses(3.7, 1.1, 9.3, 4.4, 5.5, 6.6, 8.1)
		ema := EMA(candles, 4)
		sma := SMA(candles, 4)
		require.NotEmpty(t, ema)
		require.NotEmpty(t, sma)
		assert.Equal(t, sma[0], ema[0])
	})

	t.Run("follows the recurrence", func(t *testing.T) {
		candles := candlesFromCloses(2, 4, 6, 8)
		ema := EMA(candles, 3)
		require.Len(t, ema, 2)
		assert.Equal(t, 4.0, ema[0].Value)
		// k = 0.5: (8-4)*0.5 + 4
		assert.Equal(t, 6.0, ema[1].Value)
		assert.Equal(t, candles[3].Time, ema[1].Time)
	})

	t.Run("invalid closes after the seed are skipped without advancing", func(t *testing.T) {
		candles := candlesFromCloses(2, 4, 6, 0, 8)
		ema := EMA(candles, 3)
		require.Len(t, ema, 2)
		assert.Equal(t, candles[4].Time, ema[1].Time)
		assert.Equal(t, 6.0, ema[1].Value)
	})

	t.Run("invalid close in the seed window yields nothing", func(t *testing.T) {
		assert.Empty(t, EMA(candlesFromCloses(2, -1, 6, 8), 3))
	})

	t.Run("constant series stays constant", func(t *testing.T) {
		for _, p := range EMA(candlesFromCloses(7, 7, 7, 7, 7, 7, 7), 3) {
			assert.Equal(t, 7.0, p.Value)
		}
	})
}

func TestRSI(t *testing.T) {
	t.Run("strictly increasing closes yield 100", func(t *testing.T) {
		series := RSI(candlesFromCloses(rising(30)...), 14)
		require.Len(t, series, 16)
		for _, p := range series {
			assert.Equal(t, 100.0, p.Value)
		}
	})

	t.Run("strictly decreasing closes yield 0", func(t *testing.T) {
		series := RSI(candlesFromCloses(falling(30)...), 14)
		require.Len(t, series, 16)
		for _, p := range series[1:] {
			assert.Equal(t, 0.0, p.Value)
		}
	})

	t.Run("wilder smoothing by hand", func(t *testing.T) {
		candles := candlesFromCloses(1, 2, 3, 2, 4)
		series := RSI(candles, 2)
		require.Len(t, series, 3)
		assert.Equal(t, candles[2].Time, series[0].Time)
		assert.Equal(t, 100.0, series[0].Value)
		assert.InDelta(t, 50.0, series[1].Value, 1e-9)
		assert.InDelta(t, 100-100/6.0, series[2].Value, 1e-9)
	})

	t.Run("truncates at the first invalid close", func(t *testing.T) {
		closes := append(rising(5), 0)
		closes = append(closes, rising(20)...)
		assert.Empty(t, RSI(candlesFromCloses(closes...), 14))

		series := RSI(candlesFromCloses(closes...), 3)
		// only the 5 leading closes are usable
		assert.Len(t, series, 2)
	})

	t.Run("flat seed produces no signal", func(t *testing.T) {
		assert.Empty(t, RSI(candlesFromCloses(5, 5, 5, 5, 5, 6), 3))
	})

	t.Run("needs period plus one closes", func(t *testing.T) {
		assert.Empty(t, RSI(candlesFromCloses(rising(14)...), 14))
		assert.Len(t, RSI(candlesFromCloses(rising(15)...), 14), 1)
	})

	t.Run("values stay within bounds", func(t *testing.T) {
		closes := []float64{44.34, 44.09, 44.15, 43.61, 44.33, 44.83, 45.10, 45.42,
			45.84, 46.08, 45.89, 46.03, 45.61, 46.28, 46.28, 46.00, 46.03, 46.41,
			46.22, 45.64, 46.21, 46.25, 45.71, 46.45, 45.78, 45.35, 44.03, 44.18}
		series := RSI(candlesFromCloses(closes...), 14)
		require.NotEmpty(t, series)
		for _, p := range series {
			assert.GreaterOrEqual(t, p.Value, 0.0)
			assert.LessOrEqual(t, p.Value, 100.0)
		}
	})
}

func TestVWAP(t *testing.T) {
	t.Run("resets at the UTC day boundary for hourly timeframe", func(t *testing.T) {
		day1 := time.Date(2024, 5, 1, 23, 0, 0, 0, time.UTC).Unix()
		day2 := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).Unix()
		candles := []domain.Candle{
			{Time: day1, Open: 10, High: 12, Low: 8, Close: 10, Volume: 100},
			{Time: day2, Open: 50, High: 55, Low: 45, Close: 53, Volume: 3},
		}

		series := VWAP(candles, domain.Timeframe1h)
		require.Len(t, series, 2)
		assert.InDelta(t, candles[1].TypicalPrice(), series[1].Value, 1e-9)
	})

	t.Run("accumulates inside a bucket", func(t *testing.T) {
		start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Unix()
		candles := []domain.Candle{
			{Time: start, High: 10, Low: 10, Close: 10, Volume: 1},
			{Time: start + 300, High: 20, Low: 20, Close: 20, Volume: 3},
		}

		series := VWAP(candles, domain.Timeframe5m)
		require.Len(t, series, 2)
		assert.InDelta(t, 17.5, series[1].Value, 1e-9)
	})

	t.Run("sub-hour timeframe resets hourly", func(t *testing.T) {
		start := time.Date(2024, 5, 1, 10, 55, 0, 0, time.UTC).Unix()
		candles := []domain.Candle{
			{Time: start, High: 10, Low: 10, Close: 10, Volume: 1},
			{Time: start + 300, High: 20, Low: 20, Close: 20, Volume: 3},
		}

		series := VWAP(candles, domain.Timeframe5m)
		require.Len(t, series, 2)
		assert.InDelta(t, 20.0, series[1].Value, 1e-9)
	})

	t.Run("skips candles until volume is seen", func(t *testing.T) {
		start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Unix()
		candles := []domain.Candle{
			{Time: start, High: 10, Low: 10, Close: 10},
			{Time: start + 3600, High: 20, Low: 20, Close: 20, Volume: 2},
			{Time: start + 7200, High: 30, Low: 30, Close: 30},
		}

		series := VWAP(candles, domain.Timeframe1h)
		require.Len(t, series, 2)
		assert.Equal(t, candles[1].Time, series[0].Time)
		assert.InDelta(t, 20.0, series[1].Value, 1e-9)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, VWAP(nil, domain.Timeframe1h))
	})
}

func TestCompute(t *testing.T) {
	candles := candlesFromCloses(rising(80)...)
	overlays := Compute(candles, DefaultParams(domain.Timeframe1h))

	assert.Len(t, overlays.SMA, 61)
	assert.Len(t, overlays.EMA, 61)
	assert.Len(t, overlays.VWAP, 80)
	assert.Len(t, overlays.RSI, 66)

	require.NotNil(t, overlays.Summary)
	assert.Equal(t, domain.TrendDirectionBullish, overlays.Summary.Trend)
	assert.Equal(t, 179.0, overlays.Summary.Price)
	assert.Equal(t, 100.0, overlays.Summary.RSI)
	assert.Greater(t, overlays.Summary.MACD, 0.0)
	assert.InDelta(t, 2.0, overlays.Summary.ATR, 1e-6)
}

func TestCompute_NotEnoughData(t *testing.T) {
	overlays := Compute(candlesFromCloses(1, 2, 3), DefaultParams(domain.Timeframe1h))
	assert.Empty(t, overlays.SMA)
	assert.Empty(t, overlays.EMA)
	assert.Empty(t, overlays.RSI)
	assert.Len(t, overlays.VWAP, 3)
	assert.Nil(t, overlays.Summary)
}

func TestComputeReference(t *testing.T) {
	t.Run("short input has no readings", func(t *testing.T) {
		ref := ComputeReference(candlesFromCloses(rising(10)...), 14)
		assert.False(t, ref.HasMACD)
		assert.False(t, ref.HasATR)
	})

	t.Run("invalid close truncates input", func(t *testing.T) {
		closes := append(rising(10), 0)
		closes = append(closes, rising(40)...)
		ref := ComputeReference(candlesFromCloses(closes...), 5)
		assert.False(t, ref.HasMACD)
		assert.True(t, ref.HasATR)
	})
}
