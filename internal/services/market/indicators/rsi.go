package indicators

import "github.com/vadiminshakov/dexterm/internal/domain"

// DefaultRSIPeriod is the classic Wilder period.
const DefaultRSIPeriod = 14

// RSI returns the Relative Strength Index using Wilder's smoothing.
//
// The input is truncated at the first invalid close; at least period+1 closes must
// remain. The first value is seeded from the plain averages of the first period
// deltas; a flat seed (no gains and no losses) yields no series at all.
func RSI(candles []domain.Candle, period int) domain.LineSeries {
	if period < 1 {
		return domain.LineSeries{}
	}

	usable := len(candles)
	for i, c := range candles {
		if !c.ValidClose() {
			usable = i
			break
		}
	}
	candles = candles[:usable]

	if len(candles) < period+1 {
		return domain.LineSeries{}
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		gain, loss := splitDelta(candles[i].Close - candles[i-1].Close)
		avgGain += gain
		avgLoss += loss
	}
	p := float64(period)
	avgGain /= p
	avgLoss /= p

	if avgGain == 0 && avgLoss == 0 {
		return domain.LineSeries{}
	}

	out := make(domain.LineSeries, 0, len(candles)-period)
	out = append(out, domain.Point{Time: candles[period].Time, Value: rsiValue(avgGain, avgLoss)})

	for i := period + 1; i < len(candles); i++ {
		gain, loss := splitDelta(candles[i].Close - candles[i-1].Close)
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
		out = append(out, domain.Point{Time: candles[i].Time, Value: rsiValue(avgGain, avgLoss)})
	}

	return out
}

func splitDelta(delta float64) (gain, loss float64) {
	if delta > 0 {
		return delta, 0
	}
	return 0, -delta
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rsi := 100 - 100/(1+avgGain/avgLoss)
	switch {
	case rsi < 0:
		return 0
	case rsi > 100:
		return 100
	}
	return rsi
}
