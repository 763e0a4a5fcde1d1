package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Timeframe candle interval such as "1m", "5m", "1h", "4h" or "1d".
type Timeframe string

const (
	Timeframe1m  Timeframe = "1m"
	Timeframe5m  Timeframe = "5m"
	Timeframe15m Timeframe = "15m"
	Timeframe1h  Timeframe = "1h"
	Timeframe4h  Timeframe = "4h"
	Timeframe1d  Timeframe = "1d"
)

// ParseTimeframe validates s and returns it as a Timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, err := tf.Duration(); err != nil {
		return "", err
	}
	return tf, nil
}

// Duration returns the length of one candle.
func (t Timeframe) Duration() (time.Duration, error) {
	s := string(t)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid timeframe: %q", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid timeframe number: %q", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe unit: %q", s)
	}
}

// String returns the timeframe as written in config.
func (t Timeframe) String() string {
	return string(t)
}

// VWAPReset granularity at which running VWAP sums start over.
type VWAPReset int

const (
	// VWAPResetDaily restarts at every UTC calendar day.
	VWAPResetDaily VWAPReset = iota
	// VWAPResetHourly restarts at every UTC hour.
	VWAPResetHourly
)

// VWAPReset returns the reset policy: sub-hour timeframes reset hourly, everything else daily.
// Unparseable timeframes fall back to daily.
func (t Timeframe) VWAPReset() VWAPReset {
	d, err := t.Duration()
	if err == nil && d < time.Hour {
		return VWAPResetHourly
	}
	return VWAPResetDaily
}

// Bucket identifies a VWAP accumulation period by UTC calendar fields.
type Bucket struct {
	Year  int
	Month time.Month
	Day   int
	Hour  int
}

// BucketOf returns the bucket containing the unix-seconds timestamp ts.
func (r VWAPReset) BucketOf(ts int64) Bucket {
	t := time.Unix(ts, 0).UTC()
	b := Bucket{Year: t.Year(), Month: t.Month(), Day: t.Day()}
	if r == VWAPResetHourly {
		b.Hour = t.Hour()
	}
	return b
}

// TrendDirection qualitative direction of price action.
type TrendDirection string

const (
	TrendDirectionBullish TrendDirection = "bullish"
	TrendDirectionBearish TrendDirection = "bearish"
	TrendDirectionNeutral TrendDirection = "neutral"
)

// Title returns a human-readable representation.
func (t TrendDirection) Title() string {
	switch t {
	case TrendDirectionBullish:
		return "Bullish"
	case TrendDirectionBearish:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// DetermineTrend compares price with a fast and a slow moving average.
func DetermineTrend(price, fast, slow float64) TrendDirection {
	if price > fast && fast > slow {
		return TrendDirectionBullish
	} else if price < fast && fast < slow {
		return TrendDirectionBearish
	}
	return TrendDirectionNeutral
}

// ChartSummary headline readings for the latest candle of a timeframe.
type ChartSummary struct {
	Timeframe Timeframe      `json:"timeframe"`
	Price     float64        `json:"price"`
	EMAFast   float64        `json:"ema_fast"`
	EMASlow   float64        `json:"ema_slow"`
	RSI       float64        `json:"rsi,omitempty"`
	MACD      float64        `json:"macd,omitempty"`
	ATR       float64        `json:"atr,omitempty"`
	Trend     TrendDirection `json:"trend"`
}
