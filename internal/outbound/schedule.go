package outbound

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Schedule decides when the next message is due. Wait blocks until then
// and returns nil, ctx.Err() when ctx is done, or ErrScheduleDone when
// no ticks remain.
type Schedule interface {
	Wait(ctx context.Context) error
}

// =============================================================================
// Interval
// =============================================================================

type intervalSchedule struct {
	every time.Duration

	mu   sync.Mutex
	next time.Time
	now  func() time.Time
}

// Interval ticks immediately, then every d. Ticks missed while the
// caller was busy are skipped rather than replayed.
func Interval(d time.Duration) Schedule {
	return &intervalSchedule{every: d, now: time.Now}
}

func (s *intervalSchedule) Wait(ctx context.Context) error {
	s.mu.Lock()
	now := s.now()
	due := s.next
	if due.IsZero() || !due.After(now) {
		s.next = now.Add(s.every)
		s.mu.Unlock()
		return ctx.Err()
	}
	s.next = due.Add(s.every)
	s.mu.Unlock()

	timer := time.NewTimer(due.Sub(now))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Trigger
// =============================================================================

type triggerSchedule struct {
	triggers <-chan struct{}
}

// Trigger ticks once per value received on triggers, for example operator
// input. Closing the channel finishes the schedule.
func Trigger(triggers <-chan struct{}) Schedule {
	return triggerSchedule{triggers: triggers}
}

func (s triggerSchedule) Wait(ctx context.Context) error {
	select {
	case _, ok := <-s.triggers:
		if !ok {
			return ErrScheduleDone
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Burst
// =============================================================================

type burstSchedule struct {
	requests <-chan int
	limiter  *rate.Limiter

	mu      sync.Mutex
	pending int
}

// Burst ticks on demand: each value n received on requests schedules n
// ticks, paced by limiter. Closing requests finishes the schedule once
// pending ticks are spent. A nil limiter sends without pacing.
func Burst(requests <-chan int, limiter *rate.Limiter) Schedule {
	return &burstSchedule{requests: requests, limiter: limiter}
}

// FixedBurst ticks count times paced at limit with the given bucket size,
// then finishes. A count of zero or less never finishes.
func FixedBurst(limit rate.Limit, size, count int) Schedule {
	if count <= 0 {
		return &burstSchedule{limiter: rate.NewLimiter(limit, size), pending: -1}
	}
	requests := make(chan int, 1)
	requests <- count
	close(requests)
	return &burstSchedule{requests: requests, limiter: rate.NewLimiter(limit, size)}
}

func (s *burstSchedule) Wait(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for s.pending == 0 {
		select {
		case n, ok := <-s.requests:
			if !ok {
				return ErrScheduleDone
			}
			if n > 0 {
				s.pending = n
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
	if s.pending > 0 {
		s.pending--
	}
	return nil
}
