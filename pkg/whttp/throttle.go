package whttp

import (
	"context"
	"sync"
	"time"
)

// Throttle spaces requests by a fixed gap. It is cooperative only: no adaptive backoff.
type Throttle struct {
	mu   sync.Mutex
	gap  time.Duration
	last time.Time
}

func NewThrottle(gap time.Duration) *Throttle {
	return &Throttle{gap: gap}
}

// Wait blocks until at least gap has passed since the previous Wait returned.
func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.gap <= 0 {
		return ctx.Err()
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.last.IsZero() {
		if d := t.gap - time.Since(t.last); d > 0 {
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	t.last = time.Now()
	return nil
}
