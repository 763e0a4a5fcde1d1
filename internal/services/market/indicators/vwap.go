package indicators

import "github.com/vadiminshakov/dexterm/internal/domain"

// VWAP returns the volume-weighted average of typical prices, restarting the
// running sums whenever a candle falls into a new UTC bucket. The bucket is hourly
// for sub-hour timeframes and daily otherwise.
func VWAP(candles []domain.Candle, timeframe domain.Timeframe) domain.LineSeries {
	out := make(domain.LineSeries, 0, len(candles))
	if len(candles) == 0 {
		return out
	}

	reset := timeframe.VWAPReset()

	var (
		bucket    domain.Bucket
		started   bool
		sumPV     float64
		sumVolume float64
	)

	for _, c := range candles {
		b := reset.BucketOf(c.Time)
		if !started || b != bucket {
			bucket = b
			started = true
			sumPV, sumVolume = 0, 0
		}

		tp := c.TypicalPrice()
		if domain.IsFinite(tp) && domain.IsFinite(c.Volume) && c.Volume > 0 {
			sumPV += tp * c.Volume
			sumVolume += c.Volume
		}

		if sumVolume <= 0 {
			continue
		}

		v := sumPV / sumVolume
		if !domain.IsFinite(v) {
			continue
		}
		out = append(out, domain.Point{Time: c.Time, Value: v})
	}

	return out
}
