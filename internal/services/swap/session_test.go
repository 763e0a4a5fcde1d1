package swap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/dexterm/internal/domain"
	"github.com/vadiminshakov/dexterm/internal/metrics"
)

type scriptedPricer struct {
	mu       sync.Mutex
	calls    []PriceRequest
	err      error
	ttl      time.Duration
	now      func() time.Time
	blockFor map[string]chan struct{}
	started  chan string
}

func (p *scriptedPricer) Price(ctx context.Context, req PriceRequest) (domain.Quote, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	err := p.err
	block := p.blockFor[req.PayAmount.String()]
	started := p.started
	p.mu.Unlock()

	if started != nil {
		started <- req.PayAmount.String()
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return domain.Quote{}, err
	}

	now := time.Now()
	if p.now != nil {
		now = p.now()
	}
	ttl := p.ttl
	if ttl == 0 {
		ttl = DefaultQuoteTTL
	}
	return domain.Quote{
		SellToken:     req.SellToken,
		BuyToken:      req.BuyToken,
		PayAmount:     req.PayAmount,
		ReceiveAmount: req.PayAmount.Div(decimal.NewFromInt(2000)),
		FetchedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}, nil
}

func (p *scriptedPricer) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func waitState(t *testing.T, s *Session, want domain.QuoteState) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State().State == want }, 2*time.Second, 5*time.Millisecond)
}

func TestSession_DebounceCoalescesInput(t *testing.T) {
	pricer := &scriptedPricer{}
	s := NewSession(nil, pricer, SessionOptions{Debounce: 50 * time.Millisecond})

	ctx := context.Background()
	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "1"))
	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "10"))
	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "100"))

	waitState(t, s, domain.QuoteStateQuoted)

	// give any wrongly scheduled fetch time to fire
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 1, pricer.callCount())
	assert.Equal(t, "100", pricer.calls[0].PayAmount.String())

	st := s.State()
	assert.Equal(t, "0.05", st.ReceiveAmount)
	assert.Equal(t, "100", st.PayAmount)
	require.NotNil(t, st.ExpiresAt)
}

func TestSession_FetchFailureIsSilent(t *testing.T) {
	pricer := &scriptedPricer{err: errors.New("price endpoint down")}
	m := metrics.NewMetrics()
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Millisecond, Metrics: m})

	require.NoError(t, s.SetInput(context.Background(), usdcAddr, wethAddr, "100"))
	require.Eventually(t, func() bool { return pricer.callCount() == 1 }, time.Second, time.Millisecond)
	waitState(t, s, domain.QuoteStateIdle)

	st := s.State()
	assert.Empty(t, st.ReceiveAmount)
	assert.Nil(t, st.ExpiresAt)

	_, err := s.CurrentQuote()
	assert.ErrorIs(t, err, ErrNoQuote)
}

func TestSession_InputChangeReturnsToIdle(t *testing.T) {
	pricer := &scriptedPricer{}
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Hour})
	ctx := context.Background()

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "100"))
	assert.Equal(t, domain.QuoteStateIdle, s.State().State)

	require.NoError(t, s.Requote(ctx))
	assert.Equal(t, domain.QuoteStateQuoted, s.State().State)

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "150"))
	st := s.State()
	assert.Equal(t, domain.QuoteStateIdle, st.State)
	assert.Empty(t, st.ReceiveAmount)
	assert.Equal(t, "150", st.PayAmount)
}

func TestSession_InvalidInputStaysIdle(t *testing.T) {
	pricer := &scriptedPricer{}
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Millisecond})
	ctx := context.Background()

	err := s.SetInput(ctx, usdcAddr, wethAddr, "-3")
	assert.ErrorIs(t, err, ErrInvalidAmount)
	assert.Error(t, s.SetInput(ctx, usdcAddr, usdcAddr, "1"))
	assert.ErrorIs(t, s.Requote(ctx), ErrInvalidAmount)

	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, pricer.callCount())
	assert.Equal(t, domain.QuoteStateIdle, s.State().State)
}

func TestSession_StaleResponseIsDropped(t *testing.T) {
	release := make(chan struct{})
	pricer := &scriptedPricer{
		blockFor: map[string]chan struct{}{"1": release},
		started:  make(chan string, 4),
	}
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Millisecond})
	ctx := context.Background()

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "1"))
	require.Equal(t, "1", <-pricer.started)
	assert.Equal(t, domain.QuoteStateFetching, s.State().State)

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "2"))
	require.Equal(t, "2", <-pricer.started)
	waitState(t, s, domain.QuoteStateQuoted)

	close(release)
	// the late answer for "1" must not overwrite the quote for "2"
	time.Sleep(20 * time.Millisecond)
	q, err := s.CurrentQuote()
	require.NoError(t, err)
	assert.Equal(t, "2", q.PayAmount.String())
}

func TestSession_ExpiryCountdown(t *testing.T) {
	clock := newFakeClock()
	pricer := &scriptedPricer{ttl: 5 * time.Second, now: clock.Now}
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Hour, Now: clock.Now})
	ctx := context.Background()

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "100"))
	require.NoError(t, s.Requote(ctx))
	assert.Equal(t, 5, s.State().Remaining)

	clock.Advance(3 * time.Second)
	s.Tick(clock.Now())
	st := s.State()
	assert.Equal(t, domain.QuoteStateQuoted, st.State)
	assert.Equal(t, 2, st.Remaining)

	clock.Advance(3 * time.Second)
	s.Tick(clock.Now())
	st = s.State()
	assert.Equal(t, domain.QuoteStateExpired, st.State)
	assert.Equal(t, 0, st.Remaining)

	_, err := s.CurrentQuote()
	assert.ErrorIs(t, err, ErrQuoteExpired)

	// requote from expired gets a fresh quote
	require.NoError(t, s.Requote(ctx))
	assert.Equal(t, domain.QuoteStateQuoted, s.State().State)
}

func TestSession_ReferenceDeviation(t *testing.T) {
	pricer := &scriptedPricer{}
	reference := func(ctx context.Context, q domain.Quote) (decimal.Decimal, error) {
		// quote gives 1/2000 WETH per USDC, reference 1/2020
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(2020)), nil
	}
	s := NewSession(nil, pricer, SessionOptions{Debounce: time.Hour, Reference: reference})
	ctx := context.Background()

	require.NoError(t, s.SetInput(ctx, usdcAddr, wethAddr, "100"))
	require.NoError(t, s.Requote(ctx))
	assert.Equal(t, "1.00", s.State().Deviation)
}

func TestSession_RunStopsOnCancel(t *testing.T) {
	s := NewSession(nil, &scriptedPricer{}, SessionOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDebouncer_Cancel(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	fired := make(chan struct{}, 1)
	d.Trigger(func() { fired <- struct{}{} })
	d.Cancel()

	select {
	case <-fired:
		t.Fatal("cancelled call fired")
	case <-time.After(50 * time.Millisecond):
	}
}
