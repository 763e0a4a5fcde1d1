package balancesnapshots

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/storage"
)

const (
	defaultSnapshotDir   = "./wal/balance"
	snapshotSegmentLimit = 1000
	snapshotMaxSegments  = 100
	snapshotKeyPrefix    = "balance_snapshot_"
)

// WALStore persists wallet balance snapshots for streaming to the UI.
type WALStore struct {
	log *storage.JSONLog[domain.BalanceSnapshot]
}

// NewWALStore initializes a WAL-backed snapshot store under the provided directory.
func NewWALStore(dir string) (*WALStore, error) {
	if dir == "" {
		dir = defaultSnapshotDir
	}

	log, err := storage.OpenJSONLog[domain.BalanceSnapshot](storage.LogConfig{
		Dir:          dir,
		Prefix:       "snapshot_",
		KeyPrefix:    snapshotKeyPrefix,
		SegmentLimit: snapshotSegmentLimit,
		MaxSegments:  snapshotMaxSegments,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init balance snapshot WAL")
	}

	return &WALStore{log: log}, nil
}

// Save writes the snapshot. Wallet and token are required.
func (s *WALStore) Save(snapshot domain.BalanceSnapshot) error {
	if s == nil {
		return errors.New("balance snapshot store is not initialized")
	}
	if snapshot.Wallet == "" || snapshot.Token == "" {
		return errors.New("balance snapshot wallet and token are required")
	}

	_, err := s.log.Append(strings.ToLower(snapshot.Wallet+"_"+snapshot.Token), snapshot)
	return err
}

// SnapshotsAfter returns all balance snapshots written after the provided WAL index.
func (s *WALStore) SnapshotsAfter(index uint64) ([]domain.BalanceSnapshotRecord, error) {
	if s == nil {
		return nil, errors.New("balance snapshot store is not initialized")
	}

	entries, err := s.log.After(index)
	if err != nil {
		return nil, errors.Wrap(err, "read balance snapshots")
	}

	records := make([]domain.BalanceSnapshotRecord, len(entries))
	for i, e := range entries {
		records[i] = domain.BalanceSnapshotRecord{Index: e.Index, Snapshot: e.Record}
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
		return errors.New("balance snapshot store is not initialized")
	}
	return s.log.Close()
}
