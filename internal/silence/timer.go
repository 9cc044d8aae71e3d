// Package silence provides the conversation's inactivity timer.
//
// The timer never acts on its own. When the timeout elapses it calls notify
// with the generation it was armed under, and the owner confirms the firing
// with Claim from its own goroutine. Cancel and Arm bump the generation, so a
// firing that raced with either is rejected by Claim and has no effect.
package silence

import (
	"sync"
	"time"
)

const DefaultTimeout = 10 * time.Second

type Timer struct {
	timeout time.Duration
	notify  func(gen uint64)

	mu    sync.Mutex
	t     *time.Timer
	gen   uint64
	armed bool
}

// New returns an unarmed timer. notify is called on the runtime's timer
// goroutine and should only hand the generation to the owner.
func New(timeout time.Duration, notify func(gen uint64)) *Timer {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Timer{timeout: timeout, notify: notify}
}

// Arm supersedes any pending firing and schedules a new one.
func (s *Timer) Arm() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.gen++
	gen := s.gen
	s.armed = true
	s.t = time.AfterFunc(s.timeout, func() { s.notify(gen) })
	return gen
}

// Cancel is a no-op when the timer is not armed.
func (s *Timer) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed {
		return
	}
	s.stopLocked()
	s.gen++
	s.armed = false
}

// Claim reports whether gen is the live armed generation and disarms it.
// It returns true at most once per Arm.
func (s *Timer) Claim(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.armed || gen != s.gen {
		return false
	}
	s.armed = false
	s.t = nil
	return true
}

func (s *Timer) IsArmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

func (s *Timer) Timeout() time.Duration { return s.timeout }

func (s *Timer) stopLocked() {
	if s.t != nil {
		s.t.Stop()
		s.t = nil
	}
}
