// Command dexterm runs the DEX trading terminal backend: a candle chart with
// SMA/EMA/VWAP/RSI overlays for a pool and a swap panel that quotes and executes
// trades through a 0x-style swap API.
//
// Usage:
//
//	dexterm --config config.yaml
//	dexterm --setup (interactive wizard, writes config.gen.yaml)
//	dexterm --pool 0x... (uses CLI arguments)
//
// Environment variables (also read from .env):
//
//	DEXTERM_PRIVATE_KEY  wallet key, swaps are disabled without it
//	ZEROX_API_KEY        swap API key
//	BINANCE_API_KEY, BINANCE_API_SECRET, BYBIT_API_KEY, BYBIT_API_SECRET (optional)
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/dexterm/config"
	"github.com/vadiminshakov/dexterm/internal"
	"github.com/vadiminshakov/dexterm/internal/metrics"
	"github.com/vadiminshakov/dexterm/internal/setup"
	"github.com/vadiminshakov/dexterm/internal/web"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	args := os.Args[1:]
	if setupRequested(args) {
		path, err := setup.RunTUI()
		if err != nil {
			logger.Fatal("Setup failed", zap.Error(err))
		}
		args = append(args, "--config", path)
	}

	configs, err := config.GetFrom(flag.CommandLine, args)
	if err != nil {
		logger.Fatal("Failed to get configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	listening := make(map[string]string, len(configs))
	tlsTerminal := ""
	for _, conf := range configs {
		if len(conf.TLSDomains) > 0 {
			// the ACME challenge server binds :80, one terminal at most can own it
			if tlsTerminal != "" {
				logger.Fatal("Only one terminal may use automatic TLS",
					zap.String("first", tlsTerminal), zap.String("second", conf.Name))
			}
			tlsTerminal = conf.Name
		}
		if other, ok := listening[conf.ListenAddr]; ok {
			logger.Fatal("Terminals share a listen address",
				zap.String("addr", conf.ListenAddr), zap.String("first", other), zap.String("second", conf.Name))
		}
		listening[conf.ListenAddr] = conf.Name

		m := metrics.NewMetrics()
		terminal, err := internal.NewTerminal(ctx, logger, conf, m)
		if err != nil {
			logger.Fatal("Failed to create terminal", zap.String("terminal", conf.Name), zap.Error(err))
		}
		defer terminal.Close()

		server := web.NewServer(conf.ListenAddr, logger.With(zap.String("terminal", conf.Name)), terminal, m.Handler())

		g.Go(func() error {
			return terminal.Run(ctx)
		})
		g.Go(func() error {
			if len(conf.TLSDomains) > 0 {
				return server.StartWithAutoTLS(ctx, conf.TLSDomains, conf.TLSCacheDir)
			}
			return server.Start(ctx)
		})
		logger.Info("Started", zap.String("terminal", conf.Name), zap.String("addr", conf.ListenAddr))
	}

	if err := g.Wait(); err != nil {
		logger.Error("Terminal stopped", zap.Error(err))
	}
}

func setupRequested(args []string) bool {
	for _, a := range args {
		if a == "--setup" || a == "-setup" || a == "--setup=true" || a == "-setup=true" {
			return true
		}
	}
	return false
}
