// Package chart keeps the candle series of one pool and derives the overlays the chart draws.
package chart

import (
	"sync"

	"github.com/vadiminshakov/dexterm/internal/domain"
)

const defaultCandleLimit = 300

// Store holds the normalized candles of the selected timeframe.
// Every timeframe switch bumps the generation; writes carrying an older
// generation belong to a superseded request and are dropped.
type Store struct {
	mu         sync.RWMutex
	timeframe  domain.Timeframe
	candles    []domain.Candle
	generation uint64
	limit      int
}

// NewStore creates an empty store for the timeframe keeping at most limit candles.
func NewStore(timeframe domain.Timeframe, limit int) *Store {
	if limit <= 0 {
		limit = defaultCandleLimit
	}
	return &Store{timeframe: timeframe, limit: limit, candles: []domain.Candle{}}
}

// Timeframe returns the selected timeframe and the current generation.
func (s *Store) Timeframe() (domain.Timeframe, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.timeframe, s.generation
}

// Limit returns the maximum number of candles kept.
func (s *Store) Limit() int {
	return s.limit
}

// SetTimeframe switches the timeframe, drops the current candles and returns the new generation.
func (s *Store) SetTimeframe(tf domain.Timeframe) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeframe = tf
	s.candles = []domain.Candle{}
	s.generation++
	return s.generation
}

// Replace swaps the whole series. It reports false when gen is stale.
func (s *Store) Replace(gen uint64, candles []domain.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.candles = s.trim(domain.NormalizeCandles(candles))
	return true
}

// Merge folds freshly fetched candles into the series: the still-forming last
// candle is updated in place and new periods are appended. It reports false when gen is stale.
func (s *Store) Merge(gen uint64, fetched []domain.Candle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	combined := make([]domain.Candle, 0, len(s.candles)+len(fetched))
	combined = append(combined, s.candles...)
	combined = append(combined, fetched...)
	s.candles = s.trim(domain.NormalizeCandles(combined))
	return true
}

// Candles returns a copy of the series.
func (s *Store) Candles() []domain.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

func (s *Store) trim(candles []domain.Candle) []domain.Candle {
	if len(candles) > s.limit {
		return candles[len(candles)-s.limit:]
	}
	return candles
}
