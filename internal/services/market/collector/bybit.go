package collector

import (
	"context"
	"strconv"
	"time"

	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// bybitMaxLimit largest page the v5 kline endpoint serves.
const bybitMaxLimit = 1000

// BybitProvider reads spot klines of a centralized-exchange pair from Bybit.
type BybitProvider struct {
	client *bybit.Client
	pair   domain.Pair
}

// NewBybitProvider creates a new Bybit candle provider.
func NewBybitProvider(client *bybit.Client, pair domain.Pair) *BybitProvider {
	return &BybitProvider{client: client, pair: pair}
}

// GetCandles fetches the latest klines. Bybit lists them newest first; callers normalize.
func (p *BybitProvider) GetCandles(_ context.Context, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	interval, err := bybitInterval(timeframe)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > bybitMaxLimit {
		limit = bybitMaxLimit
	}

	result, err := p.client.V5().Market().GetKline(bybit.V5GetKlineParam{
		Category: bybit.CategoryV5Spot,
		Symbol:   bybit.SymbolV5(p.pair.Symbol()),
		Interval: interval,
		Limit:    &limit,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Bybit for %s", p.pair.String())
	}
	if result == nil {
		return nil, errors.Errorf("empty result from Bybit API for %s", p.pair.String())
	}

	candles := make([]domain.Candle, 0, len(result.Result.List))
	for i, k := range result.Result.List {
		ms, err := strconv.ParseInt(k.StartTime, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse start time at index %d", i)
		}
		candle, err := parseCandle(ms/1000, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse kline at index %d", i)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// bybitInterval converts a timeframe into Bybit's notation: minutes as a number, "D" and "W".
func bybitInterval(tf domain.Timeframe) (bybit.Interval, error) {
	d, err := tf.Duration()
	if err != nil {
		return "", err
	}
	switch {
	case d == 7*24*time.Hour:
		return bybit.Interval("W"), nil
	case d == 24*time.Hour:
		return bybit.Interval("D"), nil
	case d < 24*time.Hour && d%time.Minute == 0:
		switch m := int(d / time.Minute); m {
		case 1, 3, 5, 15, 30, 60, 120, 240, 360, 720:
			return bybit.Interval(strconv.Itoa(m)), nil
		}
	}
	return "", errors.Errorf("timeframe %s is not supported by Bybit", tf)
}
