package chart

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/events"
	"github.com/vadiminshakov/dexterm/internal/metrics"
	"github.com/vadiminshakov/dexterm/internal/services/market/collector"
	"github.com/vadiminshakov/dexterm/internal/services/market/indicators"
	"go.uber.org/zap"
)

// DefaultRefreshInterval how often candles are re-fetched.
const DefaultRefreshInterval = 10 * time.Second

// Snapshot chart state as served to the UI.
type Snapshot struct {
	Timeframe domain.Timeframe    `json:"timeframe"`
	Candles   []domain.Candle     `json:"candles"`
	Overlays  indicators.Overlays `json:"overlays"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// Refresher periodically pulls candles into the store and recomputes overlays.
type Refresher struct {
	logger      *zap.Logger
	provider    collector.CandleProvider
	store       *Store
	params      indicators.Params
	interval    time.Duration
	metrics     *metrics.Metrics
	broadcaster *events.Broadcaster[Snapshot]

	mu       sync.RWMutex
	snapshot Snapshot

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewRefresher creates a refresher. Timeframe in params is ignored; the store's timeframe is used.
func NewRefresher(
	logger *zap.Logger,
	provider collector.CandleProvider,
	store *Store,
	params indicators.Params,
	interval time.Duration,
	m *metrics.Metrics,
	broadcaster *events.Broadcaster[Snapshot],
) *Refresher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	tf, _ := store.Timeframe()
	return &Refresher{
		logger:      logger,
		provider:    provider,
		store:       store,
		params:      params,
		interval:    interval,
		metrics:     m,
		broadcaster: broadcaster,
		snapshot:    Snapshot{Timeframe: tf, Candles: []domain.Candle{}},
	}
}

// Snapshot returns the latest computed chart state.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot
}

// Refresh fetches candles for the current timeframe and merges them into the store.
func (r *Refresher) Refresh(ctx context.Context) error {
	tf, gen := r.store.Timeframe()
	candles, err := r.provider.GetCandles(ctx, tf, r.store.Limit())
	if err != nil {
		r.metrics.CandlesRefreshed(metrics.OutcomeError)
		return errors.Wrapf(err, "failed to fetch %s candles", tf)
	}
	if !r.store.Merge(gen, candles) {
		r.metrics.CandlesRefreshed(metrics.OutcomeStale)
		r.logger.Debug("Dropping stale candle response", zap.String("timeframe", tf.String()))
		return nil
	}
	r.metrics.CandlesRefreshed(metrics.OutcomeOK)
	r.recompute(tf)
	return nil
}

// SetTimeframe switches the chart to tf and loads it from scratch.
func (r *Refresher) SetTimeframe(ctx context.Context, tf domain.Timeframe) error {
	if _, err := domain.ParseTimeframe(tf.String()); err != nil {
		return err
	}
	gen := r.store.SetTimeframe(tf)
	r.recompute(tf)

	candles, err := r.provider.GetCandles(ctx, tf, r.store.Limit())
	if err != nil {
		r.metrics.CandlesRefreshed(metrics.OutcomeError)
		return errors.Wrapf(err, "failed to fetch %s candles", tf)
	}
	if !r.store.Replace(gen, candles) {
		r.metrics.CandlesRefreshed(metrics.OutcomeStale)
		return nil
	}
	r.metrics.CandlesRefreshed(metrics.OutcomeOK)
	r.recompute(tf)
	return nil
}

func (r *Refresher) recompute(tf domain.Timeframe) {
	candles := r.store.Candles()
	params := r.params
	params.Timeframe = tf

	started := time.Now()
	overlays := indicators.Compute(candles, params)
	r.metrics.ObserveIndicatorCompute(time.Since(started))

	snap := Snapshot{
		Timeframe: tf,
		Candles:   candles,
		Overlays:  overlays,
		UpdatedAt: time.Now().UTC(),
	}

	r.mu.Lock()
	r.snapshot = snap
	r.mu.Unlock()

	if r.broadcaster != nil {
		r.broadcaster.Publish(snap)
	}
}

// Run refreshes immediately and then on every tick until ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		r.logger.Warn("Initial candle refresh failed", zap.Error(err))
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Starting chart refresh loop", zap.Duration("interval", r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Context done, stopping chart refresh loop")
			return ctx.Err()
		case <-ticker.C:
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("Candle refresh failed", zap.Error(err))
			}
		}
	}
}

// Start runs the refresh loop in the background until Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		_ = r.Run(runCtx)
	}(r.done)
}

// Stop cancels the refresh loop and waits for it to exit.
func (r *Refresher) Stop() {
	r.runMu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.runMu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
