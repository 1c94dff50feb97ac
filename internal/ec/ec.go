// Package ec implements event counts: monotonically increasing
// counters with wait-for-value-≥ semantics, plus the two lock
// flavors built on top of the kernel's interrupt model (spin locks
// for interrupt-context code, sleeping exclusion locks for everything
// else).
//
// An event count differs from a condition variable in that a waiter
// records a target value rather than a predicate, so an advance that
// happens between a reader's read and its wait is never lost.
package ec

import "sync"

// EventCount is a fetch-and-add counter with multi-wait.
type EventCount struct {
	mu      sync.Mutex
	cond    *sync.Cond
	value   uint32
}

// Init prepares e for use. Zero value EventCounts must call Init
// before first use because sync.Cond needs its Locker bound.
func (e *EventCount) Init() {
	e.cond = sync.NewCond(&e.mu)
	e.value = 0
}

func (e *EventCount) ensure() {
	if e.cond == nil {
		e.cond = sync.NewCond(&e.mu)
	}
}

// Advance bumps the counter by one and wakes every waiter whose
// target is now satisfied.
func (e *EventCount) Advance() {
	e.mu.Lock()
	e.ensure()
	e.value++
	e.mu.Unlock()
	e.cond.Broadcast()
}

// Read returns the current value.
func (e *EventCount) Read() uint32 {
	e.mu.Lock()
	e.ensure()
	v := e.value
	e.mu.Unlock()
	return v
}

// Wait blocks the calling goroutine until e's value is at least
// target, then returns the value observed.
func (e *EventCount) Wait(target uint32) uint32 {
	e.mu.Lock()
	e.ensure()
	for e.value < target {
		e.cond.Wait()
	}
	v := e.value
	e.mu.Unlock()
	return v
}

// Member pairs an EventCount with the target value a multi-wait is
// blocking on.
type Member struct {
	EC     *EventCount
	Target uint32
}

// WaitAny blocks until at least one member's counter reaches its
// target, returning the index of a satisfied member. Order of wakeup
// among simultaneously-satisfied members is unspecified.
func WaitAny(members []Member) int {
	notify := make(chan int, len(members))
	var once sync.Once
	for i, m := range members {
		i, m := i, m
		go func() {
			m.EC.Wait(m.Target)
			once.Do(func() { notify <- i })
		}()
	}
	return <-notify
}

// WaitN is WaitAny bounded to the first n entries of members, mirroring
// the original's fixed-array wait call.
func WaitN(members []Member, n int) int {
	return WaitAny(members[:n])
}
