package harvester

import (
	"context"
	"math/rand"
	"time"
)

// Sleeper abstracts the politeness delay between requests so tests can run
// with zero delay. Sleeps must return early when the context finishes.
type Sleeper interface {
	Sleep(ctx context.Context, min, max time.Duration)
}

// RandomSleeper waits a uniformly random duration in [min, max].
type RandomSleeper struct{}

// Sleep blocks for a random duration within the range or until ctx is done.
func (RandomSleeper) Sleep(ctx context.Context, min, max time.Duration) {
	delay := min
	if max > min {
		delay += time.Duration(rand.Int63n(int64(max - min + 1)))
	}
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// NopSleeper skips delays entirely.
type NopSleeper struct{}

// Sleep returns immediately.
func (NopSleeper) Sleep(context.Context, time.Duration, time.Duration) {}
