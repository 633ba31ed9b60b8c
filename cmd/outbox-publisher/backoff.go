package main

import (
	"context"
	"math/rand/v2"
	"time"
)

const jitterWindow = 250 * time.Millisecond

func nextBackoff(current, base, ceiling time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, ceiling)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
