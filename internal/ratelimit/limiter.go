// Package ratelimit provides the process-wide limiter shared between the
// serving path's on-demand gap fills and the background worker pool. Every
// Explorer call in a process passes through the same limiter instance
// (NodeRPC is given a separate one), so a burst of foreground requests cannot starve background jobs and vice
// versa.
package ratelimit

import (
	"context"
	"time"

	"github.com/addrtx/scanner/internal/metrics"
	"golang.org/x/time/rate"
)

// Limiter caps upstream request rate at R tokens/sec and concurrency at C
// in-flight calls. Token admission and the concurrency slot are acquired
// together in Acquire, so a caller that has been granted a token always
// has a slot to run in. Admission is not FIFO: callers holding a token
// compete for a free slot in no defined order.
type Limiter struct {
	tokens *rate.Limiter
	slots  chan struct{}
}

// New builds a Limiter allowing tokensPerSecond requests/sec (with a burst
// of 1, so bursts beyond the steady rate always queue) and maxConcurrent
// requests in flight at once.
func New(tokensPerSecond float64, maxConcurrent int) *Limiter {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Limiter{
		tokens: rate.NewLimiter(rate.Limit(tokensPerSecond), 1),
		slots:  make(chan struct{}, maxConcurrent),
	}
}

// Acquire blocks until a token and a concurrency slot are both available,
// or ctx is cancelled. Callers must call the returned release func exactly
// once, regardless of how the protected call finished.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	start := time.Now()
	if err := l.tokens.Wait(ctx); err != nil {
		return nil, err
	}

	select {
	case l.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	recordWait(time.Since(start))

	released := false
	return func() {
		if released {
			return
		}
		released = true
		<-l.slots
	}, nil
}

func recordWait(d time.Duration) {
	metrics.RateLimiterWaitSeconds.Observe(d.Seconds())
}
