package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	hyperliquid "github.com/sonirico/go-hyperliquid"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// HyperliquidProvider reads candle snapshots of a coin from the Hyperliquid Info API.
type HyperliquidProvider struct {
	info *hyperliquid.Info
	coin string
}

// NewHyperliquidProvider creates a provider; only the base of pair is used since markets are USD-quoted.
func NewHyperliquidProvider(info *hyperliquid.Info, pair domain.Pair) *HyperliquidProvider {
	return &HyperliquidProvider{info: info, coin: strings.ToUpper(pair.From)}
}

// GetCandles fetches candle data.
func (p *HyperliquidProvider) GetCandles(ctx context.Context, timeframe domain.Timeframe, limit int) ([]domain.Candle, error) {
	if p.info == nil {
		return nil, fmt.Errorf("hyperliquid info is nil")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}
	dur, err := timeframe.Duration()
	if err != nil {
		return nil, err
	}

	endMs := time.Now().UnixMilli()
	// two extra candles of slack for window rounding
	startMs := endMs - (int64(limit)+2)*dur.Milliseconds()

	candles, err := p.info.CandlesSnapshot(ctx, p.coin, timeframe.String(), startMs, endMs)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, fmt.Errorf("no candles from hyperliquid for %s %s", p.coin, timeframe)
	}
	if len(candles) > limit {
		candles = candles[len(candles)-limit:]
	}

	out := make([]domain.Candle, 0, len(candles))
	for i, c := range candles {
		candle, err := parseCandle(c.TimeOpen/1000, c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return nil, fmt.Errorf("parse candle at %d: %w", i, err)
		}
		out = append(out, candle)
	}

	return out, nil
}
