package collector

import (
	"sync"
	"sync/atomic"
	"time"
)

// scheduler runs low-priority capture work off the intercepted call's path.
// A task waits until no intercepted call is in flight or until its deadline
// passes, whichever comes first, then runs. When the backlog is full the
// task runs at once on a goroutine of its own instead of being dropped, so
// the submitter never waits on it.
type scheduler struct {
	timeout time.Duration
	tasks   chan task

	inflight atomic.Int64
	wake     chan struct{}

	// mu orders overflow wg.Add calls against stop.
	mu       sync.RWMutex
	quit     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type task struct {
	run      func()
	deadline time.Time
}

func newScheduler(backlog int, timeout time.Duration) *scheduler {
	return &scheduler{
		timeout: timeout,
		tasks:   make(chan task, backlog),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
	}
}

func (s *scheduler) start(workers int) {
	for range workers {
		s.wg.Add(1)
		go s.loop()
	}
}

// begin marks an intercepted call in flight. The returned function ends it
// and is safe to call more than once.
func (s *scheduler) begin() func() {
	s.inflight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			if s.inflight.Add(-1) == 0 {
				select {
				case s.wake <- struct{}{}:
				default:
				}
			}
		})
	}
}

func (s *scheduler) idle() bool { return s.inflight.Load() <= 0 }

// submit queues fn. It reports false when fn was not queued: with a full
// backlog fn starts on its own goroutine, and once the scheduler is stopped
// fn runs inline.
func (s *scheduler) submit(fn func()) bool {
	s.mu.RLock()
	select {
	case <-s.quit:
		s.mu.RUnlock()
		fn()
		return false
	default:
	}
	defer s.mu.RUnlock()
	select {
	case s.tasks <- task{run: fn, deadline: time.Now().Add(s.timeout)}:
		return true
	default:
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			fn()
		}()
		return false
	}
}

func (s *scheduler) loop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.quit:
			return
		case t := <-s.tasks:
			if !s.waitIdle(t.deadline) {
				return
			}
			t.run()
		}
	}
}

// waitIdle blocks until the transport is idle or deadline passes. It
// returns false if the scheduler stopped meanwhile.
func (s *scheduler) waitIdle(deadline time.Time) bool {
	if s.idle() {
		return true
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	for !s.idle() {
		select {
		case <-s.quit:
			return false
		case <-timer.C:
			return true
		case <-s.wake:
			// Another worker may have consumed the wake-up; pass it on.
			if s.idle() {
				select {
				case s.wake <- struct{}{}:
				default:
				}
			}
		}
	}
	return true
}

// stop ends the workers and waits for overflow tasks already running.
// Tasks still queued are discarded.
func (s *scheduler) stop() {
	s.mu.Lock()
	s.stopOnce.Do(func() { close(s.quit) })
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *scheduler) backlog() int { return len(s.tasks) }
