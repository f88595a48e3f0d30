package animate

import (
	"context"
	"sync"
	"time"
)

// Sleeper suspends the animation timeline. Sleep returns ctx.Err() if the
// context ends first.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// RealSleeper waits on the wall clock.
type RealSleeper struct{}

func (RealSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// InstantSleeper returns immediately and accumulates the requested time.
type InstantSleeper struct {
	mu    sync.Mutex
	total time.Duration
}

func (s *InstantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.total += d
	s.mu.Unlock()
	return ctx.Err()
}

// Total returns the accumulated sleep time.
func (s *InstantSleeper) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
