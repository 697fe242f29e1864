package broadcast

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const DefaultSendInterval = 500 * time.Millisecond

// RateLimiter paces upstream sends within one run.
type RateLimiter interface {
	Wait(ctx context.Context) error
}

// SendCompleter is implemented by limiters that count the interval from
// the end of a recipient's dispatch instead of its start.
type SendCompleter interface {
	Done(at time.Time)
}

// LimiterFactory returns a fresh limiter per run so concurrent runs never
// share pacing state.
type LimiterFactory func() RateLimiter

// IntervalLimiter enforces a fixed gap between the end of one recipient's
// dispatch and the start of the next. The first send goes through
// immediately.
type IntervalLimiter struct {
	interval time.Duration

	mu  sync.Mutex
	lim *rate.Limiter
}

// NewIntervalLimiter returns NopLimiter for a non-positive interval.
func NewIntervalLimiter(interval time.Duration) RateLimiter {
	if interval <= 0 {
		return NopLimiter{}
	}
	return &IntervalLimiter{interval: interval, lim: rate.NewLimiter(rate.Every(interval), 1)}
}

func (l *IntervalLimiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	lim := l.lim
	l.mu.Unlock()
	return lim.Wait(ctx)
}

// Done restarts the interval at the time the dispatch finished, so a slow
// upstream call still gets the full gap before the next recipient.
func (l *IntervalLimiter) Done(at time.Time) {
	lim := rate.NewLimiter(rate.Every(l.interval), 1)
	lim.AllowN(at, 1)
	l.mu.Lock()
	l.lim = lim
	l.mu.Unlock()
}

func IntervalLimiterFactory(interval time.Duration) LimiterFactory {
	return func() RateLimiter { return NewIntervalLimiter(interval) }
}

// NopLimiter never waits. It still honours cancellation.
type NopLimiter struct{}

func (NopLimiter) Wait(ctx context.Context) error { return ctx.Err() }
