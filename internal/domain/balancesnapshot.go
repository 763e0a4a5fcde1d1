package domain

import "time"

// BalanceSnapshot wallet balance of a single token in human units.
type BalanceSnapshot struct {
	Timestamp time.Time `json:"ts"`
	Wallet    string    `json:"wallet"`
	Token     string    `json:"token"`
	Amount    string    `json:"amount"`
}

// BalanceSnapshotRecord bundles a snapshot with its store index.
type BalanceSnapshotRecord struct {
	Index    uint64
	Snapshot BalanceSnapshot
}
