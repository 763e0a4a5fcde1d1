// Package trades keeps the journal of completed swaps.
package trades

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/storage"
)

const (
	DefaultDir   = "./wal/trades"
	segmentLimit = 100
	maxSegments  = 10
	keyPrefix    = "trade_"
)

// WALStore persists trade records in a WAL.
type WALStore struct {
	log *storage.JSONLog[domain.TradeRecord]
}

// NewWALStore initializes a WAL-backed trade journal.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = DefaultDir
	}

	log, err := storage.OpenJSONLog[domain.TradeRecord](storage.LogConfig{
		Dir:          dir,
		Prefix:       "trade_",
		KeyPrefix:    keyPrefix,
		SegmentLimit: segmentLimit,
		MaxSegments:  maxSegments,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init trade WAL")
	}

	return &WALStore{log: log}, nil
}

// SaveTrade appends the record, assigning an ID when it has none.
func (s *WALStore) SaveTrade(record domain.TradeRecord) (domain.TradeRecord, error) {
	if s == nil {
		return domain.TradeRecord{}, errors.New("trade store is not initialized")
	}
	if record.TxHash == "" {
		return domain.TradeRecord{}, errors.New("trade record tx hash is required")
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	if _, err := s.log.Append(record.ID, record); err != nil {
		return domain.TradeRecord{}, err
	}
	return record, nil
}

// TradesAfter returns all trade records written after the provided WAL index.
func (s *WALStore) TradesAfter(index uint64) ([]domain.TradeRecordEntry, error) {
	if s == nil {
		return nil, errors.New("trade store is not initialized")
	}

	entries, err := s.log.After(index)
	if err != nil {
		return nil, errors.Wrap(err, "read trades")
	}

	records := make([]domain.TradeRecordEntry, len(entries))
	for i, e := range entries {
		records[i] = domain.TradeRecordEntry{Index: e.Index, Record: e.Record}
	}
	return records, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil {
		return 0
	}
	return s.log.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil {
		return errors.New("trade store is not initialized")
	}
	return s.log.Close()
}
