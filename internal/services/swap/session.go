package swap

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/metrics"
	"github.com/vadiminshakov/dexterm/internal/services/pricer"
	"go.uber.org/zap"
)

const (
	countdownInterval = time.Second
	fetchTimeout      = 15 * time.Second
)

// QuotePricer produces quotes for the session.
type QuotePricer interface {
	Price(ctx context.Context, req PriceRequest) (domain.Quote, error)
}

// ReferenceFunc returns the reference price (buy units per sell unit) for a quote.
type ReferenceFunc func(ctx context.Context, q domain.Quote) (decimal.Decimal, error)

// SessionOptions optional collaborators of a session.
type SessionOptions struct {
	Debounce  time.Duration
	Now       func() time.Time
	Metrics   *metrics.Metrics
	Reference ReferenceFunc
}

// SessionState what the UI renders for the swap panel.
type SessionState struct {
	State         domain.QuoteState `json:"state"`
	SellToken     string            `json:"sell_token"`
	BuyToken      string            `json:"buy_token"`
	PayAmount     string            `json:"pay_amount"`
	ReceiveAmount string            `json:"receive_amount,omitempty"`
	ExpiresAt     *time.Time        `json:"expires_at,omitempty"`
	Remaining     int               `json:"remaining_seconds"`
	Deviation     string            `json:"reference_deviation_pct,omitempty"`
}

// Session owns the quote state machine of the swap panel:
// idle -> fetching -> quoted -> expired, with any input change going back to idle.
type Session struct {
	logger    *zap.Logger
	pricer    QuotePricer
	debouncer *Debouncer
	now       func() time.Time
	metrics   *metrics.Metrics
	reference ReferenceFunc

	mu         sync.Mutex
	state      domain.QuoteState
	input      PriceRequest
	rawAmount  string
	quote      *domain.Quote
	deviation  *decimal.Decimal
	generation uint64
}

// NewSession creates an idle session.
func NewSession(logger *zap.Logger, pricer QuotePricer, opts SessionOptions) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Session{
		logger:    logger,
		pricer:    pricer,
		debouncer: NewDebouncer(opts.Debounce),
		now:       now,
		metrics:   opts.Metrics,
		reference: opts.Reference,
		state:     domain.QuoteStateIdle,
	}
}

// SetInput records new tokens and pay amount, drops the current quote and
// schedules a debounced fetch. Invalid input leaves the session idle.
func (s *Session) SetInput(ctx context.Context, sellToken, buyToken, payAmount string) error {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.state = domain.QuoteStateIdle
	s.quote = nil
	s.deviation = nil
	s.rawAmount = strings.TrimSpace(payAmount)
	s.input = PriceRequest{SellToken: sellToken, BuyToken: buyToken}
	s.debouncer.Cancel()

	amount, err := ParseAmount(payAmount)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if sellToken == "" || buyToken == "" || strings.EqualFold(sellToken, buyToken) {
		s.mu.Unlock()
		return errors.New("sell and buy tokens must be set and differ")
	}
	s.input.PayAmount = amount
	req := s.input
	s.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	s.debouncer.Trigger(func() {
		s.fetch(fetchCtx, gen, req)
	})
	return nil
}

// Requote fetches immediately for the current input, e.g. after expiry.
func (s *Session) Requote(ctx context.Context) error {
	s.mu.Lock()
	if !s.input.PayAmount.IsPositive() {
		s.mu.Unlock()
		return ErrInvalidAmount
	}
	s.generation++
	gen := s.generation
	req := s.input
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.fetch(ctx, gen, req)
	return nil
}

func (s *Session) fetch(ctx context.Context, gen uint64, req PriceRequest) {
	s.mu.Lock()
	if gen != s.generation {
		s.mu.Unlock()
		return
	}
	s.state = domain.QuoteStateFetching
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	quote, err := s.pricer.Price(ctx, req)

	var deviation *decimal.Decimal
	if err == nil && s.reference != nil {
		deviation = s.referenceDeviation(ctx, quote)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		s.metrics.QuoteFetched(metrics.OutcomeStale)
		return
	}

	if err != nil {
		s.metrics.QuoteFetched(metrics.OutcomeError)
		s.logger.Warn("Quote fetch failed",
			zap.String("sell_token", req.SellToken),
			zap.String("buy_token", req.BuyToken),
			zap.String("pay_amount", req.PayAmount.String()),
			zap.Error(err))
		s.quote = nil
		s.deviation = nil
		s.state = domain.QuoteStateIdle
		return
	}

	s.metrics.QuoteFetched(metrics.OutcomeOK)
	s.quote = &quote
	s.deviation = deviation
	s.state = domain.QuoteStateQuoted
	if !quote.Valid(s.now()) {
		s.state = domain.QuoteStateExpired
	}
}

func (s *Session) referenceDeviation(ctx context.Context, q domain.Quote) *decimal.Decimal {
	if q.PayAmount.IsZero() {
		return nil
	}
	ref, err := s.reference(ctx, q)
	if err != nil {
		s.logger.Debug("Reference price unavailable", zap.Error(err))
		return nil
	}
	if ref.IsZero() {
		return nil
	}
	d := pricer.DeviationPercent(q.ReceiveAmount.Div(q.PayAmount), ref)
	return &d
}

// Tick marks the quote expired once its time is up.
func (s *Session) Tick(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == domain.QuoteStateQuoted && s.quote != nil && !s.quote.Valid(now) {
		s.state = domain.QuoteStateExpired
		s.logger.Debug("Quote expired", zap.Time("expires_at", s.quote.ExpiresAt))
	}
}

// CurrentQuote returns the quote if it can still be executed.
func (s *Session) CurrentQuote() (domain.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quote == nil {
		return domain.Quote{}, ErrNoQuote
	}
	if !s.quote.Valid(s.now()) {
		s.state = domain.QuoteStateExpired
		return domain.Quote{}, ErrQuoteExpired
	}
	return *s.quote, nil
}

// State returns the current panel state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := SessionState{
		State:     s.state,
		SellToken: s.input.SellToken,
		BuyToken:  s.input.BuyToken,
		PayAmount: s.rawAmount,
	}
	if s.quote != nil {
		st.ReceiveAmount = s.quote.ReceiveAmount.String()
		expires := s.quote.ExpiresAt
		st.ExpiresAt = &expires
		st.Remaining = int(s.quote.Remaining(s.now()).Round(time.Second) / time.Second)
	}
	if s.deviation != nil {
		st.Deviation = s.deviation.StringFixed(2)
	}
	return st
}

// Run drives the expiry countdown until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(countdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.debouncer.Cancel()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(s.now())
		}
	}
}
