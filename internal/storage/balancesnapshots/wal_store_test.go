package balancesnapshots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

func TestWALStore_SnapshotsAfter(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ts := time.Unix(1700000000, 0).UTC()
	require.NoError(t, store.Save(domain.BalanceSnapshot{Timestamp: ts, Wallet: "0xabc", Token: "USDC", Amount: "900"}))
	require.NoError(t, store.Save(domain.BalanceSnapshot{Timestamp: ts, Wallet: "0xabc", Token: "WETH", Amount: "0.05"}))

	records, err := store.SnapshotsAfter(0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "USDC", records[0].Snapshot.Token)
	assert.Equal(t, "0.05", records[1].Snapshot.Amount)
	assert.Equal(t, uint64(2), records[1].Index)

	records, err = store.SnapshotsAfter(store.CurrentIndex())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestWALStore_SaveValidates(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	assert.Error(t, store.Save(domain.BalanceSnapshot{Token: "USDC"}))
	assert.Error(t, store.Save(domain.BalanceSnapshot{Wallet: "0xabc"}))
}
