package host

import (
	"sync"
	"time"
)

// TickerScheduler implements Scheduler with one time.Ticker goroutine per
// schedule. It is safe for concurrent use.
type TickerScheduler struct {
	mu     sync.Mutex
	next   TimerHandle
	active map[TimerHandle]chan struct{}
}

// NewTickerScheduler creates an empty scheduler.
func NewTickerScheduler() *TickerScheduler {
	return &TickerScheduler{active: make(map[TimerHandle]chan struct{})}
}

// ScheduleRepeating starts calling fn every interval until Cancel.
// A non-positive interval is clamped to one millisecond.
func (s *TickerScheduler) ScheduleRepeating(interval time.Duration, fn func()) TimerHandle {
	if interval <= 0 {
		interval = time.Millisecond
	}

	s.mu.Lock()
	s.next++
	h := s.next
	done := make(chan struct{})
	s.active[h] = done
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				select {
				case <-done:
					return
				default:
				}
				fn()
			}
		}
	}()

	return h
}

// Cancel stops the schedule. Unknown or zero handles are ignored.
func (s *TickerScheduler) Cancel(h TimerHandle) {
	s.mu.Lock()
	done, ok := s.active[h]
	delete(s.active, h)
	s.mu.Unlock()
	if ok {
		close(done)
	}
}

// CancelAll stops every schedule. Used when the owning host goes away.
func (s *TickerScheduler) CancelAll() {
	s.mu.Lock()
	active := s.active
	s.active = make(map[TimerHandle]chan struct{})
	s.mu.Unlock()
	for _, done := range active {
		close(done)
	}
}

// Len returns the number of live schedules.
func (s *TickerScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}
