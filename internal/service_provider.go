package internal

import (
	"fmt"
	"sync"

	binance "github.com/adshao/go-binance/v2"
	bybit "github.com/hirokisan/bybit/v2"
	"github.com/pkg/errors"
	hyperliquid "github.com/sonirico/go-hyperliquid"

	"github.com/vadiminshakov/dexterm/config"
	"github.com/vadiminshakov/dexterm/internal/clients"
	"github.com/vadiminshakov/dexterm/internal/services/market/collector"
	"github.com/vadiminshakov/dexterm/internal/services/pricer"
)

// serviceProvider builds the market data services selected in the config.
// Exchange clients are created once and shared between candles and reference prices.
type serviceProvider struct {
	conf config.Config

	binanceOnce   sync.Once
	binanceClient *binance.Client

	bybitOnce   sync.Once
	bybitClient *bybit.Client

	hlOnce sync.Once
	hlInfo *hyperliquid.Info
	hlErr  error
}

func newServiceProvider(conf config.Config) *serviceProvider {
	return &serviceProvider{conf: conf}
}

func (p *serviceProvider) binance() *binance.Client {
	p.binanceOnce.Do(func() {
		p.binanceClient = clients.NewBinanceClient(p.conf.Secrets.BinanceAPIKey, p.conf.Secrets.BinanceSecret)
	})
	return p.binanceClient
}

func (p *serviceProvider) bybit() *bybit.Client {
	p.bybitOnce.Do(func() {
		p.bybitClient = clients.NewBybitClient(p.conf.Secrets.BybitAPIKey, p.conf.Secrets.BybitSecret)
	})
	return p.bybitClient
}

func (p *serviceProvider) hyperliquid() (*hyperliquid.Info, error) {
	p.hlOnce.Do(func() {
		p.hlInfo, p.hlErr = clients.NewHyperliquidInfo(p.conf.Secrets.HyperliquidURL)
	})
	return p.hlInfo, p.hlErr
}

// CandleProvider returns the chart's candle source.
func (p *serviceProvider) CandleProvider() (collector.CandleProvider, error) {
	switch p.conf.CandleSource {
	case config.CandleSourceGeckoTerminal:
		return collector.NewGeckoTerminalProvider(p.conf.Secrets.GeckoTerminalURL, p.conf.Network, p.conf.Pool), nil
	case config.CandleSourceBinance:
		return collector.NewBinanceProvider(p.binance(), p.conf.CandlePair), nil
	case config.CandleSourceBybit:
		return collector.NewBybitProvider(p.bybit(), p.conf.CandlePair), nil
	case config.CandleSourceHyperliquid:
		info, err := p.hyperliquid()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		return collector.NewHyperliquidProvider(info, p.conf.CandlePair), nil
	default:
		return nil, fmt.Errorf("unsupported candle source: %s", p.conf.CandleSource)
	}
}

// ReferencePricer returns the CEX price source, or nil when reference prices are disabled.
func (p *serviceProvider) ReferencePricer() (pricer.Pricer, error) {
	switch p.conf.ReferenceSource {
	case config.ReferenceNone, "":
		return nil, nil
	case config.ReferenceBinance:
		return pricer.NewBinancePricer(p.binance()), nil
	case config.ReferenceBybit:
		return pricer.NewBybitPricer(p.bybit()), nil
	case config.ReferenceHyperliquid:
		info, err := p.hyperliquid()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create hyperliquid client")
		}
		return pricer.NewHyperliquidPricer(info), nil
	default:
		return nil, fmt.Errorf("unsupported reference source: %s", p.conf.ReferenceSource)
	}
}
