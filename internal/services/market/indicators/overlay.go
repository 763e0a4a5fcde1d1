package indicators

import "github.com/vadiminshakov/dexterm/internal/domain"

// Params selects indicator periods and the timeframe used for VWAP resets.
type Params struct {
	Timeframe     domain.Timeframe
	SMAPeriod     int
	EMAPeriod     int
	SlowEMAPeriod int
	RSIPeriod     int
	ATRPeriod     int
}

// DefaultParams returns the periods the chart starts with.
func DefaultParams(tf domain.Timeframe) Params {
	return Params{
		Timeframe:     tf,
		SMAPeriod:     20,
		EMAPeriod:     20,
		SlowEMAPeriod: 50,
		RSIPeriod:     DefaultRSIPeriod,
		ATRPeriod:     defaultATRPeriod,
	}
}

// Overlays every series the chart draws on top of the candles.
type Overlays struct {
	SMA     domain.LineSeries    `json:"sma"`
	EMA     domain.LineSeries    `json:"ema"`
	VWAP    domain.LineSeries    `json:"vwap"`
	RSI     domain.LineSeries    `json:"rsi"`
	Summary *domain.ChartSummary `json:"summary,omitempty"`
}

// Compute derives all overlays from normalized candles. Nothing is carried over
// between calls: a changed candle series or parameter set is recomputed in full.
func Compute(candles []domain.Candle, p Params) Overlays {
	o := Overlays{
		SMA:  SMA(candles, p.SMAPeriod),
		EMA:  EMA(candles, p.EMAPeriod),
		VWAP: VWAP(candles, p.Timeframe),
		RSI:  RSI(candles, p.RSIPeriod),
	}
	o.Summary = summarize(candles, p, o)
	return o
}

func summarize(candles []domain.Candle, p Params, o Overlays) *domain.ChartSummary {
	if len(candles) == 0 {
		return nil
	}
	latest := candles[len(candles)-1]
	if !latest.ValidClose() {
		return nil
	}

	fast, ok := o.EMA.Last()
	if !ok {
		return nil
	}
	slow, ok := EMA(candles, p.SlowEMAPeriod).Last()
	if !ok {
		slow = fast
	}

	summary := &domain.ChartSummary{
		Timeframe: p.Timeframe,
		Price:     latest.Close,
		EMAFast:   fast.Value,
		EMASlow:   slow.Value,
		Trend:     domain.DetermineTrend(latest.Close, fast.Value, slow.Value),
	}
	if rsi, ok := o.RSI.Last(); ok {
		summary.RSI = rsi.Value
	}

	ref := ComputeReference(candles, p.ATRPeriod)
	if ref.HasMACD {
		summary.MACD = ref.MACD
	}
	if ref.HasATR {
		summary.ATR = ref.ATR
	}

	return summary
}
