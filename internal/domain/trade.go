package domain

import (
	"fmt"
	"time"
)

// TradeRecord completed swap as written to the trade journal.
// Amounts are strings to avoid float precision issues when consumed by the UI.
type TradeRecord struct {
	ID             string    `json:"id"`
	Timestamp      time.Time `json:"ts"`
	ChainID        int64     `json:"chain_id"`
	Wallet         string    `json:"wallet"`
	SellToken      string    `json:"sell_token"`
	BuyToken       string    `json:"buy_token"`
	SellAmount     string    `json:"sell_amount"`
	BuyAmount      string    `json:"buy_amount"`
	TxHash         string    `json:"tx_hash"`
	ApprovalTxHash string    `json:"approval_tx_hash,omitempty"`
}

// String returns a human-readable string representation.
func (t TradeRecord) String() string {
	return fmt.Sprintf("%s %s -> %s %s tx: %s", t.SellAmount, t.SellToken, t.BuyAmount, t.BuyToken, t.TxHash)
}

// TradeRecordEntry bundles a trade record with its journal index.
type TradeRecordEntry struct {
	Index  uint64
	Record TradeRecord
}
