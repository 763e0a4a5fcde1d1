package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NativeTokenAddress placeholder address swap APIs use for the chain's native coin.
const NativeTokenAddress = "0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE"

// IsNativeToken reports whether addr denotes the native coin.
func IsNativeToken(addr string) bool {
	return strings.EqualFold(addr, NativeTokenAddress)
}

// QuoteState lifecycle of an indicative quote.
type QuoteState string

const (
	QuoteStateIdle     QuoteState = "idle"
	QuoteStateFetching QuoteState = "fetching"
	QuoteStateQuoted   QuoteState = "quoted"
	QuoteStateExpired  QuoteState = "expired"
)

// Quote indicative price for a pay amount, usable only until ExpiresAt.
type Quote struct {
	SellToken     string          `json:"sell_token"`
	BuyToken      string          `json:"buy_token"`
	PayAmount     decimal.Decimal `json:"pay_amount"`
	ReceiveAmount decimal.Decimal `json:"receive_amount"`
	FetchedAt     time.Time       `json:"fetched_at"`
	ExpiresAt     time.Time       `json:"expires_at"`
}

// Valid reports whether the quote can still be executed at now.
func (q Quote) Valid(now time.Time) bool {
	return !q.ExpiresAt.IsZero() && now.Before(q.ExpiresAt)
}

// Remaining returns the time left before expiry, never negative.
func (q Quote) Remaining(now time.Time) time.Duration {
	if q.ExpiresAt.IsZero() || !now.Before(q.ExpiresAt) {
		return 0
	}
	return q.ExpiresAt.Sub(now)
}

// SwapIntent is built right before execution and is never persisted.
type SwapIntent struct {
	SellToken   string
	BuyToken    string
	SellAmount  decimal.Decimal
	Taker       string
	SlippageBps int
}
