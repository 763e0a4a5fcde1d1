package internal

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vadiminshakov/dexterm/config"
	"github.com/vadiminshakov/dexterm/internal/clients"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/events"
	"github.com/vadiminshakov/dexterm/internal/metrics"
	"github.com/vadiminshakov/dexterm/internal/services/market/chart"
	"github.com/vadiminshakov/dexterm/internal/services/market/collector"
	"github.com/vadiminshakov/dexterm/internal/services/market/indicators"
	"github.com/vadiminshakov/dexterm/internal/services/pricer"
	"github.com/vadiminshakov/dexterm/internal/services/swap"
	"github.com/vadiminshakov/dexterm/internal/storage/balancesnapshots"
	"github.com/vadiminshakov/dexterm/internal/storage/trades"
	"github.com/vadiminshakov/dexterm/pkg/retrier"
)

const (
	broadcastBuffer    = 16
	persistMaxRetries  = 3
	persistInitialWait = 200 * time.Millisecond
	persistMaxWait     = 2 * time.Second
)

type chainClient interface {
	swap.Chain
	swap.Wallet
	swap.DecimalsReader
	Close()
}

type swapAPI interface {
	swap.PriceAPI
	swap.QuoteAPI
}

type tradeStore interface {
	SaveTrade(record domain.TradeRecord) (domain.TradeRecord, error)
	TradesAfter(index uint64) ([]domain.TradeRecordEntry, error)
	Close() error
}

type snapshotStore interface {
	Save(snapshot domain.BalanceSnapshot) error
	SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error)
	Close() error
}

// terminalDeps external collaborators of a terminal. reference is optional.
type terminalDeps struct {
	chain     chainClient
	api       swapAPI
	candles   collector.CandleProvider
	reference pricer.Pricer
	trades    tradeStore
	snapshots snapshotStore
	now       func() time.Time
}

// Terminal one pool chart with its swap panel.
type Terminal struct {
	conf    config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	chain     chainClient
	decimals  *swap.DecimalsResolver
	refresher *chart.Refresher
	session   *swap.Session
	executor  *swap.Executor
	trades    tradeStore
	snapshots snapshotStore
	balances  *events.BalanceBroadcaster
	charts    *events.Broadcaster[chart.Snapshot]
}

// NewTerminal connects to the chain and the market data sources described by conf.
func NewTerminal(ctx context.Context, logger *zap.Logger, conf config.Config, m *metrics.Metrics) (*Terminal, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("terminal", conf.Name))

	provider := newServiceProvider(conf)
	candles, err := provider.CandleProvider()
	if err != nil {
		return nil, err
	}
	reference, err := provider.ReferencePricer()
	if err != nil {
		return nil, err
	}

	chain, err := clients.NewEVMClient(ctx, logger, conf.RPCURL, conf.Secrets.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to chain")
	}
	if conf.ChainID != 0 && chain.ChainID() != conf.ChainID {
		chain.Close()
		return nil, errors.Errorf("rpc %s serves chain %d, config expects %d", conf.RPCURL, chain.ChainID(), conf.ChainID)
	}
	if _, ok := chain.Address(); !ok {
		logger.Warn("No wallet key configured, swaps are disabled", zap.String("env", config.EnvPrivateKey))
	}

	tradeWAL, err := trades.NewWALStore(conf.TradesDir)
	if err != nil {
		chain.Close()
		return nil, errors.Wrap(err, "failed to create trade store")
	}
	snapshotWAL, err := balancesnapshots.NewWALStore(conf.SnapshotsDir)
	if err != nil {
		chain.Close()
		_ = tradeWAL.Close()
		return nil, errors.Wrap(err, "failed to create balance snapshot store")
	}

	return newTerminal(logger, conf, m, terminalDeps{
		chain:     chain,
		api:       swap.NewAPIClient(conf.SwapAPIURL, conf.Secrets.ZeroXAPIKey),
		candles:   candles,
		reference: reference,
		trades:    tradeWAL,
		snapshots: snapshotWAL,
	}), nil
}

func newTerminal(logger *zap.Logger, conf config.Config, m *metrics.Metrics, deps terminalDeps) *Terminal {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.now
	if now == nil {
		now = time.Now
	}

	decimals := swap.NewDecimalsResolver(deps.chain)
	balances := events.NewBalanceBroadcaster(broadcastBuffer)
	charts := events.NewBroadcaster[chart.Snapshot](broadcastBuffer)

	params := indicators.DefaultParams(conf.Timeframe)
	params.SMAPeriod = conf.SMAPeriod
	params.EMAPeriod = conf.EMAPeriod
	params.SlowEMAPeriod = conf.SlowEMAPeriod
	params.RSIPeriod = conf.RSIPeriod

	store := chart.NewStore(conf.Timeframe, conf.CandleLimit)
	refresher := chart.NewRefresher(logger.Named("chart"), deps.candles, store, params, conf.RefreshInterval, m, charts)

	quoter := swap.NewQuoter(deps.api, decimals, deps.chain.ChainID(), conf.QuoteTTL, now)
	opts := swap.SessionOptions{Debounce: conf.Debounce, Now: now, Metrics: m}
	if deps.reference != nil {
		opts.Reference = referenceFunc(deps.reference, conf.ReferencePair, conf.SellToken)
	}
	session := swap.NewSession(logger.Named("quote"), quoter, opts)

	swapLogger := logger.Named("swap")
	executor := swap.NewExecutor(swap.ExecutorDeps{
		Logger:    swapLogger,
		Chain:     deps.chain,
		Wallet:    deps.chain,
		API:       deps.api,
		Decimals:  decimals,
		Trades:    deps.trades,
		Snapshots: deps.snapshots,
		Balances:  balances,
		Retrier: retrier.New(
			retrier.WithMaxRetries(persistMaxRetries),
			retrier.WithInitialInterval(persistInitialWait),
			retrier.WithMaxInterval(persistMaxWait),
			retrier.WithRetryIf(func(err error) bool {
				return !errors.Is(err, context.Canceled)
			}),
			retrier.WithOnRetry(func(attempt int, err error) {
				swapLogger.Warn("Retrying trade persistence", zap.Int("attempt", attempt), zap.Error(err))
			}),
		),
		Metrics: m,
		Now:     now,
	})

	return &Terminal{
		conf:      conf,
		logger:    logger,
		metrics:   m,
		chain:     deps.chain,
		decimals:  decimals,
		refresher: refresher,
		session:   session,
		executor:  executor,
		trades:    deps.trades,
		snapshots: deps.snapshots,
		balances:  balances,
		charts:    charts,
	}
}

// referenceFunc adapts a CEX pricer to the session. The pair is quoted in units of
// its second currency per baseToken; quotes selling the other token get the inverse.
func referenceFunc(p pricer.Pricer, pair domain.Pair, baseToken string) swap.ReferenceFunc {
	return func(ctx context.Context, q domain.Quote) (decimal.Decimal, error) {
		price, err := p.GetPrice(ctx, pair)
		if err != nil {
			return decimal.Zero, err
		}
		if price.IsZero() {
			return decimal.Zero, errors.Errorf("zero reference price for %s", pair)
		}
		if baseToken != "" && !strings.EqualFold(q.SellToken, baseToken) {
			return decimal.NewFromInt(1).Div(price), nil
		}
		return price, nil
	}
}

// Run starts the chart refresh loop and the quote countdown and blocks until ctx is done.
func (t *Terminal) Run(ctx context.Context) error {
	if t.conf.SellToken != "" && t.conf.BuyToken != "" && t.conf.DefaultAmount.IsPositive() {
		if err := t.session.SetInput(ctx, t.conf.SellToken, t.conf.BuyToken, t.conf.DefaultAmount.String()); err != nil {
			t.logger.Warn("Default swap input rejected", zap.Error(err))
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return t.refresher.Run(ctx)
	})
	g.Go(func() error {
		return t.session.Run(ctx)
	})

	t.logger.Info("Terminal started",
		zap.String("timeframe", t.conf.Timeframe.String()),
		zap.Int64("chain_id", t.chain.ChainID()))

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases the chain connection and the stores.
func (t *Terminal) Close() {
	t.chain.Close()
	if err := t.trades.Close(); err != nil {
		t.logger.Warn("Failed to close trade store", zap.Error(err))
	}
	if err := t.snapshots.Close(); err != nil {
		t.logger.Warn("Failed to close balance snapshot store", zap.Error(err))
	}
}

// Name identifies the terminal in logs and routes.
func (t *Terminal) Name() string {
	return t.conf.Name
}

// Chart returns the latest chart snapshot.
func (t *Terminal) Chart() chart.Snapshot {
	return t.refresher.Snapshot()
}

// SetTimeframe switches the chart timeframe and reloads candles.
func (t *Terminal) SetTimeframe(ctx context.Context, tf domain.Timeframe) error {
	return t.refresher.SetTimeframe(ctx, tf)
}

// ChartUpdates publishes every recomputed chart snapshot.
func (t *Terminal) ChartUpdates() *events.Broadcaster[chart.Snapshot] {
	return t.charts
}

// BalanceUpdates publishes balances refreshed after swaps.
func (t *Terminal) BalanceUpdates() *events.BalanceBroadcaster {
	return t.balances
}

// SetQuoteInput updates the swap panel input and schedules a quote.
func (t *Terminal) SetQuoteInput(ctx context.Context, sellToken, buyToken, payAmount string) error {
	return t.session.SetInput(ctx, sellToken, buyToken, payAmount)
}

// Requote fetches a new quote for the current input without debouncing.
func (t *Terminal) Requote(ctx context.Context) error {
	return t.session.Requote(ctx)
}

// QuoteState returns the swap panel state.
func (t *Terminal) QuoteState() swap.SessionState {
	return t.session.State()
}

// Swap executes the current quote with the connected wallet.
func (t *Terminal) Swap(ctx context.Context) (swap.Result, error) {
	quote, err := t.session.CurrentQuote()
	if err != nil {
		return swap.Result{}, err
	}

	var taker string
	if addr, ok := t.chain.Address(); ok {
		taker = addr.Hex()
	}

	res, err := t.executor.Execute(ctx, domain.SwapIntent{
		SellToken:   quote.SellToken,
		BuyToken:    quote.BuyToken,
		SellAmount:  quote.PayAmount,
		Taker:       taker,
		SlippageBps: t.conf.SlippageBps,
	}, quote)
	if err != nil {
		return swap.Result{}, err
	}

	// the executed quote must not be reused, fetch a fresh one for the same input
	if err := t.session.SetInput(ctx, quote.SellToken, quote.BuyToken, quote.PayAmount.String()); err != nil {
		t.logger.Warn("Failed to reset quote after swap", zap.Error(err))
	}
	return res, nil
}

// Balance returns the wallet balance of token in human units.
func (t *Terminal) Balance(ctx context.Context, token string) (decimal.Decimal, error) {
	owner, ok := t.chain.Address()
	if !ok {
		return decimal.Zero, swap.ErrWalletNotConnected
	}
	dec, err := t.decimals.Resolve(ctx, token)
	if err != nil {
		return decimal.Zero, err
	}
	raw, err := t.chain.BalanceOf(ctx, common.HexToAddress(token), owner)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "failed to read balance of %s", token)
	}
	if raw == nil {
		raw = new(big.Int)
	}
	return swap.FromBaseUnits(raw, dec), nil
}

// TradesAfter reads the trade journal after index.
func (t *Terminal) TradesAfter(index uint64) ([]domain.TradeRecordEntry, error) {
	return t.trades.TradesAfter(index)
}

// SnapshotsAfter reads balance snapshots after index.
func (t *Terminal) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	return t.snapshots.SnapshotsAfter(index)
}
