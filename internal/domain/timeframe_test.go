package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimeframe_Duration(t *testing.T) {
	tests := []struct {
		input     Timeframe
		expected  time.Duration
		shouldErr bool
	}{
		{input: "1m", expected: time.Minute},
		{input: "5m", expected: 5 * time.Minute},
		{input: "1h", expected: time.Hour},
		{input: "4h", expected: 4 * time.Hour},
		{input: "1d", expected: 24 * time.Hour},
		{input: "", shouldErr: true},
		{input: "m", shouldErr: true},
		{input: "1x", shouldErr: true},
		{input: "0m", shouldErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			d, err := tt.input.Duration()
			if tt.shouldErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestTimeframe_VWAPReset(t *testing.T) {
	assert.Equal(t, VWAPResetHourly, Timeframe1m.VWAPReset())
	assert.Equal(t, VWAPResetHourly, Timeframe5m.VWAPReset())
	assert.Equal(t, VWAPResetDaily, Timeframe1h.VWAPReset())
	assert.Equal(t, VWAPResetDaily, Timeframe4h.VWAPReset())
	assert.Equal(t, VWAPResetDaily, Timeframe1d.VWAPReset())
	assert.Equal(t, VWAPResetDaily, Timeframe("weird").VWAPReset())
}

func TestVWAPReset_BucketOf(t *testing.T) {
	a := time.Date(2024, 3, 10, 23, 59, 0, 0, time.UTC).Unix()
	b := time.Date(2024, 3, 11, 0, 1, 0, 0, time.UTC).Unix()
	c := time.Date(2024, 3, 10, 22, 1, 0, 0, time.UTC).Unix()

	assert.NotEqual(t, VWAPResetDaily.BucketOf(a), VWAPResetDaily.BucketOf(b))
	assert.Equal(t, VWAPResetDaily.BucketOf(a), VWAPResetDaily.BucketOf(c))
	assert.NotEqual(t, VWAPResetHourly.BucketOf(a), VWAPResetHourly.BucketOf(c))
}

func TestDetermineTrend(t *testing.T) {
	assert.Equal(t, TrendDirectionBullish, DetermineTrend(110, 105, 100))
	assert.Equal(t, TrendDirectionBearish, DetermineTrend(90, 95, 100))
	assert.Equal(t, TrendDirectionNeutral, DetermineTrend(100, 105, 100))
}
