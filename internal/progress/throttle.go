package progress

import (
	"context"
	"sync/atomic"

	"golang.org/x/time/rate"
)

// Throttled drops intermediate events beyond the configured rate. Final
// (Done) events always pass.
type Throttled struct {
	next    Publisher
	limiter *rate.Limiter
	dropped atomic.Int64
}

// NewThrottled allows perSecond events per second with bursts of burst.
func NewThrottled(next Publisher, perSecond float64, burst int) *Throttled {
	return &Throttled{next: next, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttled) Publish(ctx context.Context, evt Event) error {
	if !evt.Done && !t.limiter.Allow() {
		t.dropped.Add(1)
		return nil
	}
	return t.next.Publish(ctx, evt)
}

// Dropped reports how many events were suppressed.
func (t *Throttled) Dropped() int64 { return t.dropped.Load() }
