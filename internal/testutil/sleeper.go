package testutil

import (
	"context"
	"sync"
	"time"
)

// RecordingSleeper records requested pauses without sleeping.
type RecordingSleeper struct {
	mu     sync.Mutex
	pauses []time.Duration

	// OnSleep, if set, runs inside Sleep (e.g. to cancel a context).
	OnSleep func()
}

// Sleep implements job.Sleeper. Returns ctx.Err() if ctx is done.
func (s *RecordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.pauses = append(s.pauses, d)
	hook := s.OnSleep
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return ctx.Err()
}

// Pauses returns a copy of the recorded pause durations.
func (s *RecordingSleeper) Pauses() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.pauses))
	copy(out, s.pauses)
	return out
}
