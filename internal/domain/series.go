package domain

// Point single value of an indicator series aligned to a candle open time.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// LineSeries ordered indicator values consumed by the chart.
type LineSeries []Point

// Last returns the most recent point.
func (s LineSeries) Last() (Point, bool) {
	if len(s) == 0 {
		return Point{}, false
	}
	return s[len(s)-1], true
}

// Values returns the bare values.
func (s LineSeries) Values() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Value
	}
	return out
}
