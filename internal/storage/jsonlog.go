// Package storage provides WAL-backed append-only logs of JSON records.
package storage

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

// LogConfig describes one WAL-backed log.
type LogConfig struct {
	Dir          string
	Prefix       string
	KeyPrefix    string
	SegmentLimit int
	MaxSegments  int
}

// Entry record decoded from the log together with its WAL index.
type Entry[T any] struct {
	Index  uint64
	Record T
}

// JSONLog appends JSON-encoded records to a gowal log and reads them back by index.
type JSONLog[T any] struct {
	wal       *gowal.Wal
	keyPrefix string
	mu        sync.RWMutex
}

// OpenJSONLog opens (or creates) the log described by cfg.
func OpenJSONLog[T any](cfg LogConfig) (*JSONLog[T], error) {
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              cfg.Dir,
		Prefix:           cfg.Prefix,
		SegmentThreshold: cfg.SegmentLimit,
		MaxSegments:      cfg.MaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "init WAL in %s", cfg.Dir)
	}

	return &JSONLog[T]{wal: wal, keyPrefix: cfg.KeyPrefix}, nil
}

// Append writes record under keyPrefix+suffix and returns its index.
func (l *JSONLog[T]) Append(suffix string, record T) (uint64, error) {
	if l == nil || l.wal == nil {
		return 0, errors.New("log is not initialized")
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return 0, errors.Wrap(err, "marshal record")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nextIndex := l.wal.CurrentIndex() + 1
	if err := l.wal.Write(nextIndex, l.keyPrefix+suffix, payload); err != nil {
		return 0, errors.Wrap(err, "write record")
	}
	return nextIndex, nil
}

// After returns all records written after index.
func (l *JSONLog[T]) After(index uint64) ([]Entry[T], error) {
	if l == nil || l.wal == nil {
		return nil, errors.New("log is not initialized")
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	current := l.wal.CurrentIndex()
	if current <= index {
		return nil, nil
	}

	entries := make([]Entry[T], 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := l.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, l.keyPrefix) {
			continue
		}
		var record T
		if err := json.Unmarshal(payload, &record); err != nil {
			return nil, errors.Wrapf(err, "decode record %d", idx)
		}
		entries = append(entries, Entry[T]{Index: idx, Record: record})
	}

	return entries, nil
}

// CurrentIndex returns the latest WAL index stored.
func (l *JSONLog[T]) CurrentIndex() uint64 {
	if l == nil || l.wal == nil {
		return 0
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (l *JSONLog[T]) Close() error {
	if l == nil || l.wal == nil {
		return errors.New("log is not initialized")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.wal.Close()
}
