package indicators

import (
	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/cinar/indicator/v2/volatility"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

const (
	macdMinCandles   = 26
	defaultATRPeriod = 14
)

// Reference latest MACD line and ATR readings, computed by cinar/indicator.
// They feed the chart summary only and never replace the overlay series.
type Reference struct {
	MACD    float64
	HasMACD bool
	ATR     float64
	HasATR  bool
}

// ComputeReference calculates MACD and ATR over the leading run of candles with valid closes.
func ComputeReference(candles []domain.Candle, atrPeriod int) Reference {
	if atrPeriod < 1 {
		atrPeriod = defaultATRPeriod
	}

	usable := len(candles)
	for i, c := range candles {
		if !c.ValidClose() {
			usable = i
			break
		}
	}
	candles = candles[:usable]

	var ref Reference
	if len(candles) >= macdMinCandles {
		if v, ok := lastMACD(domain.Closes(candles)); ok {
			ref.MACD, ref.HasMACD = v, true
		}
	}
	if len(candles) >= atrPeriod+1 {
		if v, ok := lastATR(candles, atrPeriod); ok {
			ref.ATR, ref.HasATR = v, true
		}
	}

	return ref
}

func lastMACD(closes []float64) (float64, bool) {
	macd := trend.NewMacd[float64]()
	macdChan, signalChan := macd.Compute(helper.SliceToChan(closes))
	// drain signal channel to prevent blocking
	go func() {
		for range signalChan {
		}
	}()
	values := helper.ChanToSlice(macdChan)
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}

func lastATR(candles []domain.Candle, period int) (float64, bool) {
	highs := make([]float64, len(candles))
	lows := make([]float64, len(candles))
	closes := make([]float64, len(candles))
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}

	atr := volatility.NewAtrWithPeriod[float64](period)
	values := helper.ChanToSlice(atr.Compute(
		helper.SliceToChan(highs),
		helper.SliceToChan(lows),
		helper.SliceToChan(closes),
	))
	if len(values) == 0 {
		return 0, false
	}
	return values[len(values)-1], true
}
