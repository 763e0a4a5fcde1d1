package trades

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

func TestWALStore_SaveAndReadBack(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	first, err := store.SaveTrade(domain.TradeRecord{
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		ChainID:    1,
		Wallet:     "0xabc",
		SellToken:  "USDC",
		BuyToken:   "WETH",
		SellAmount: "100",
		BuyAmount:  "0.05",
		TxHash:     "0x01",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)

	_, err = store.SaveTrade(domain.TradeRecord{ID: "fixed", TxHash: "0x02"})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), store.CurrentIndex())

	all, err := store.TradesAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, first, all[0].Record)
	assert.Equal(t, uint64(1), all[0].Index)
	assert.Equal(t, "fixed", all[1].Record.ID)

	tail, err := store.TradesAfter(1)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, "0x02", tail[0].Record.TxHash)

	none, err := store.TradesAfter(2)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestWALStore_RequiresTxHash(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.SaveTrade(domain.TradeRecord{})
	assert.Error(t, err)
	assert.Equal(t, uint64(0), store.CurrentIndex())
}

func TestWALStore_Reopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	_, err = store.SaveTrade(domain.TradeRecord{TxHash: "0x01"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	all, err := reopened.TradesAfter(0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "0x01", all[0].Record.TxHash)
}
