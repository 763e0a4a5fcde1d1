package indicators

import "github.com/vadiminshakov/dexterm/internal/domain"

// EMA returns the exponential moving average of closes over period.
// The seed is the SMA of the first period closes, all of which must be valid.
// Later candles with an invalid close are skipped: no point is emitted and the
// average is not advanced.
func EMA(candles []domain.Candle, period int) domain.LineSeries {
	if period < 1 || len(candles) < period {
		return domain.LineSeries{}
	}

	ema, ok := windowMean(candles[:period])
	if !ok {
		return domain.LineSeries{}
	}

	out := make(domain.LineSeries, 0, len(candles)-period+1)
	out = append(out, domain.Point{Time: candles[period-1].Time, Value: ema})

	k := 2 / float64(period+1)
	for _, c := range candles[period:] {
		if !c.ValidClose() {
			continue
		}
		ema = (c.Close-ema)*k + ema
		out = append(out, domain.Point{Time: c.Time, Value: ema})
	}

	return out
}
