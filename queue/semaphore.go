// Package queue implements the FIFO counting semaphore and the queue
// controller from spec.md §4.5/§4.6.
//
// golang.org/x/sync/semaphore.Weighted was considered and rejected: it
// has no way to grow/shrink its weight after construction and no way to
// observe FIFO waiter order, both of which setConcurrency/reset require
// (spec.md §4.6). The teacher's own pool package (core/pool) solves a
// different problem (object reuse, not admission control) so this
// semaphore is original, modeled directly on the classic
// channel-of-waiters counting-semaphore pattern.
package queue

import "sync"

// Semaphore is a FIFO counting semaphore whose capacity can change at
// runtime (spec.md §4.6).
type Semaphore struct {
	mu      sync.Mutex
	max     int
	current int
	waiters []chan bool
}

// NewSemaphore creates a semaphore with the given initial capacity.
func NewSemaphore(max int) *Semaphore {
	return &Semaphore{max: max}
}

// Acquire blocks until a slot is available (returning true), or until
// Reset abandons this wait (returning false, spec.md §4.6's "not
// acquired" signal).
func (s *Semaphore) Acquire() bool {
	s.mu.Lock()
	if s.current < s.max {
		s.current++
		s.mu.Unlock()
		return true
	}
	ch := make(chan bool, 1)
	s.waiters = append(s.waiters, ch)
	s.mu.Unlock()
	return <-ch
}

// Release frees a slot. If waiters are queued, the slot is handed
// directly to the head of the FIFO instead of being returned to the
// general pool, preserving acquire order.
func (s *Semaphore) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.waiters) > 0 {
		head := s.waiters[0]
		s.waiters = s.waiters[1:]
		head <- true
		return
	}
	s.current--
}

// SetConcurrency changes max. If it grows, up to the size of the
// increase (bounded by the number of current waiters) are woken
// immediately (spec.md §4.6).
func (s *Semaphore) SetConcurrency(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delta := n - s.max
	s.max = n
	if delta <= 0 {
		return
	}
	wake := delta
	if wake > len(s.waiters) {
		wake = len(s.waiters)
	}
	for i := 0; i < wake; i++ {
		head := s.waiters[0]
		s.waiters = s.waiters[1:]
		s.current++
		head <- true
	}
}

// Reset wakes every waiter with a "not acquired" signal (spec.md §4.6)
// and clears occupancy. Callers use this to abandon all pending
// acquires, e.g. on queue.Clear().
func (s *Semaphore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.waiters {
		w <- false
	}
	s.waiters = nil
	s.current = 0
}

// Current reports the number of occupied slots, for stats reporting.
func (s *Semaphore) Current() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}
