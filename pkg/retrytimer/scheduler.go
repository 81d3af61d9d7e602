package retrytimer

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler runs one delayed function per key. Scheduling the same key again
// replaces the previous timer, so repeated failures never fan out into a tree
// of pending retries.
type Scheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool
}

func NewScheduler() *Scheduler {
	return &Scheduler{timers: make(map[string]*time.Timer)}
}

// Schedule arms (or re-arms) the timer for key. fn runs once after delay
// unless the key is cancelled or the scheduler is stopped first.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if prev, ok := s.timers[key]; ok {
		prev.Stop()
	}
	s.timers[key] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		fn()
	})
}

// Cancel stops the pending timer for key, if any.
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.timers[key]; ok {
		t.Stop()
		delete(s.timers, key)
	}
}

// Pending reports how many keys currently have an armed timer.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending timer. Used on shutdown so retries do not fire
// into torn-down dependencies.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
	logrus.Debug("[RETRY] Scheduler stopped, all pending timers cancelled")
}
