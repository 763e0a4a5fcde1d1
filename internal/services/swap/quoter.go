package swap

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dexterm/internal/domain"
)

// DefaultQuoteTTL validity of a quote when the API does not say otherwise.
const DefaultQuoteTTL = 30 * time.Second

// PriceAPI fetches indicative prices.
type PriceAPI interface {
	Price(ctx context.Context, p PriceParams) (PriceResponse, error)
}

// PriceRequest pay side of a quote in human units.
type PriceRequest struct {
	SellToken string
	BuyToken  string
	PayAmount decimal.Decimal
}

// Quoter turns human amounts into indicative quotes.
type Quoter struct {
	api      PriceAPI
	decimals *DecimalsResolver
	chainID  int64
	ttl      time.Duration
	now      func() time.Time
}

// NewQuoter creates a quoter. Zero ttl selects DefaultQuoteTTL, nil now selects time.Now.
func NewQuoter(api PriceAPI, decimals *DecimalsResolver, chainID int64, ttl time.Duration, now func() time.Time) *Quoter {
	if ttl <= 0 {
		ttl = DefaultQuoteTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Quoter{api: api, decimals: decimals, chainID: chainID, ttl: ttl, now: now}
}

// Price fetches a quote for req.
func (q *Quoter) Price(ctx context.Context, req PriceRequest) (domain.Quote, error) {
	if !req.PayAmount.IsPositive() {
		return domain.Quote{}, ErrInvalidAmount
	}

	sellDecimals, err := q.decimals.Resolve(ctx, req.SellToken)
	if err != nil {
		return domain.Quote{}, err
	}
	buyDecimals, err := q.decimals.Resolve(ctx, req.BuyToken)
	if err != nil {
		return domain.Quote{}, err
	}

	sellAmount := ToBaseUnits(req.PayAmount, sellDecimals)
	if sellAmount.Sign() <= 0 {
		return domain.Quote{}, errors.Wrapf(ErrInvalidAmount, "%s is below one base unit", req.PayAmount)
	}

	resp, err := q.api.Price(ctx, PriceParams{
		ChainID:    q.chainID,
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: sellAmount,
	})
	if err != nil {
		return domain.Quote{}, err
	}
	if resp.BuyAmount == "" {
		return domain.Quote{}, ErrEmptyQuote
	}

	buyAmount, err := ParseBaseUnits(resp.BuyAmount)
	if err != nil {
		return domain.Quote{}, err
	}

	ttl := q.ttl
	if resp.ExpiresInSeconds != nil && *resp.ExpiresInSeconds > 0 {
		ttl = time.Duration(*resp.ExpiresInSeconds) * time.Second
	}

	now := q.now()
	return domain.Quote{
		SellToken:     req.SellToken,
		BuyToken:      req.BuyToken,
		PayAmount:     req.PayAmount,
		ReceiveAmount: FromBaseUnits(buyAmount, buyDecimals),
		FetchedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}, nil
}
