// Package indicators derives chart overlay series (SMA, EMA, VWAP, RSI) from candles.
// Every function is pure: the same candles and parameters always produce the same series.
package indicators

import "github.com/vadiminshakov/dexterm/internal/domain"

// SMA returns the simple moving average of closes over period.
// A window is emitted only when all of its closes are valid (finite and positive);
// windows touching an invalid candle are skipped, not interpolated.
func SMA(candles []domain.Candle, period int) domain.LineSeries {
	if period < 1 || len(candles) < period {
		return domain.LineSeries{}
	}

	out := make(domain.LineSeries, 0, len(candles)-period+1)
	for i := period - 1; i < len(candles); i++ {
		mean, ok := windowMean(candles[i-period+1 : i+1])
		if !ok {
			continue
		}
		out = append(out, domain.Point{Time: candles[i].Time, Value: mean})
	}

	return out
}

// windowMean averages the closes of window, failing on any invalid close.
func windowMean(window []domain.Candle) (float64, bool) {
	var sum float64
	for _, c := range window {
		if !c.ValidClose() {
			return 0, false
		}
		sum += c.Close
	}
	return sum / float64(len(window)), true
}
