package domain

import (
	"math"
	"slices"
	"time"
)

// Candle single OHLCV bar. Time is the bar open in unix seconds.
// Volume is optional; zero means the source did not report it.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume,omitempty"`
}

// OpenTime returns the bar open time in UTC.
func (c Candle) OpenTime() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// ValidClose reports whether the close is usable by indicators: finite and positive.
func (c Candle) ValidClose() bool {
	return IsFinite(c.Close) && c.Close > 0
}

// TypicalPrice returns (high+low+close)/3.
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// NormalizeCandles returns a new slice sorted by Time with unique timestamps.
// When the input carries the same timestamp more than once the last occurrence wins.
func NormalizeCandles(candles []Candle) []Candle {
	if len(candles) == 0 {
		return []Candle{}
	}

	last := make(map[int64]int, len(candles))
	for i, c := range candles {
		last[c.Time] = i
	}

	out := make([]Candle, 0, len(last))
	for i, c := range candles {
		if last[c.Time] == i {
			out = append(out, c)
		}
	}

	slices.SortFunc(out, func(a, b Candle) int {
		switch {
		case a.Time < b.Time:
			return -1
		case a.Time > b.Time:
			return 1
		default:
			return 0
		}
	})

	return out
}

// Closes extracts close prices.
func Closes(candles []Candle) []float64 {
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	return closes
}
