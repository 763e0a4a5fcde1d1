package retrier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errPermanent = errors.New("permanent")

func TestRetrier_Do(t *testing.T) {
	tests := []struct {
		name         string
		opts         []Option
		failUntil    int
		failWith     error
		wantErr      bool
		wantAttempts int
	}{
		{name: "first attempt succeeds", failUntil: 0, wantAttempts: 1},
		{name: "succeeds after retries", opts: []Option{WithMaxRetries(3)}, failUntil: 2, wantAttempts: 3},
		{name: "gives up after max retries", opts: []Option{WithMaxRetries(2)}, failUntil: 10, wantErr: true, wantAttempts: 3},
		{
			name:         "non-retryable error stops immediately",
			opts:         []Option{WithMaxRetries(5), WithRetryIf(func(err error) bool { return !errors.Is(err, errPermanent) })},
			failUntil:    10,
			failWith:     errPermanent,
			wantErr:      true,
			wantAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := append([]Option{WithInitialInterval(time.Millisecond)}, tt.opts...)
			r := New(opts...)

			failWith := tt.failWith
			if failWith == nil {
				failWith = errors.New("fail")
			}

			attempts := 0
			err := r.Do(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts <= tt.failUntil {
					return failWith
				}
				return nil
			})

			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantAttempts, attempts)
		})
	}
}

func TestRetrier_ContextCancellation(t *testing.T) {
	r := New(WithMaxRetries(5), WithInitialInterval(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := r.Do(ctx, func(ctx context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("fail")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, attempts)
}

func TestRetrier_OnRetry(t *testing.T) {
	var seen []int
	r := New(
		WithMaxRetries(2),
		WithInitialInterval(time.Millisecond),
		WithOnRetry(func(attempt int, err error) { seen = append(seen, attempt) }),
	)

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errors.New("fail") })
	assert.Equal(t, []int{1, 2}, seen)
}

func TestRetrier_DoWithData(t *testing.T) {
	t.Run("success returns data", func(t *testing.T) {
		val, err := DoWithData(New(), context.Background(), func(ctx context.Context) (string, error) {
			return "saved", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "saved", val)
	})

	t.Run("failure returns error", func(t *testing.T) {
		r := New(WithMaxRetries(1), WithInitialInterval(time.Millisecond))
		val, err := DoWithData(r, context.Background(), func(ctx context.Context) (string, error) {
			return "", errors.New("fail")
		})
		assert.Error(t, err)
		assert.Empty(t, val)
	})
}

func TestRetrier_BackoffCappedByMaxInterval(t *testing.T) {
	r := New(
		WithInitialInterval(5*time.Millisecond),
		WithMultiplier(10),
		WithMaxInterval(10*time.Millisecond),
		WithJitter(0),
		WithMaxRetries(3),
	)

	var stamps []time.Time
	err := r.Do(context.Background(), func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return errors.New("fail")
	})
	assert.Error(t, err)
	assert.Len(t, stamps, 4)

	// 5ms, then 50ms capped to 10ms, then 10ms; uncapped would be 555ms
	total := stamps[len(stamps)-1].Sub(stamps[0])
	assert.GreaterOrEqual(t, total, 25*time.Millisecond)
	assert.Less(t, total, 300*time.Millisecond)
}
