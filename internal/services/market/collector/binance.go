package collector

import (
	"context"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// BinanceProvider reads spot klines of a centralized-exchange pair from Binance.
type BinanceProvider struct {
	client *binance.Client
	pair   domain.Pair
}

// NewBinanceProvider creates a new Binance candle provider.
func NewBinanceProvider(client *binance.Client, pair domain.Pair) *BinanceProvider {
	return &BinanceProvider{client: client, pair: pair}
}

// GetCandles fetches kline data from Binance.
func (p *BinanceProvider) GetCandles(ctx context.Context, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	klines, err := p.client.NewKlinesService().
		Symbol(p.pair.Symbol()).
		Interval(timeframe.String()).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch klines from Binance for %s", p.pair.String())
	}

	result := make([]domain.Candle, len(klines))
	for i, k := range klines {
		candle, err := parseCandle(k.OpenTime/1000, k.Open, k.High, k.Low, k.Close, k.Volume)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to parse kline at index %d", i)
		}
		result[i] = candle
	}

	return result, nil
}
