package ec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAdvanceWakesWaiter(t *testing.T) {
	var e EventCount
	e.Init()

	done := make(chan uint32, 1)
	go func() { done <- e.Wait(1) }()

	time.Sleep(10 * time.Millisecond)
	e.Advance()

	select {
	case v := <-done:
		require.EqualValues(t, 1, v)
	case <-time.After(time.Second):
		t.Fatal("waiter never woke after Advance")
	}
}

func TestWaitReturnsImmediatelyWhenAlreadySatisfied(t *testing.T) {
	var e EventCount
	e.Init()
	e.Advance()
	e.Advance()

	v := e.Wait(1)
	require.EqualValues(t, 2, v)
}

func TestAdvanceBetweenReadAndWaitIsNotLost(t *testing.T) {
	var e EventCount
	e.Init()
	target := e.Read() + 1

	e.Advance() // happens before the Wait call below, must not be missed

	done := make(chan struct{})
	go func() {
		e.Wait(target)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("wait missed an advance that preceded it")
	}
}

func TestWaitAnySatisfiesOnFirstReadyMember(t *testing.T) {
	var a, b EventCount
	a.Init()
	b.Init()

	idx := make(chan int, 1)
	go func() {
		idx <- WaitAny([]Member{{EC: &a, Target: 1}, {EC: &b, Target: 1}})
	}()

	time.Sleep(10 * time.Millisecond)
	b.Advance()

	select {
	case got := <-idx:
		require.Equal(t, 1, got)
	case <-time.After(time.Second):
		t.Fatal("WaitAny never resolved")
	}
}

func TestSpinLockTokenRoundTrip(t *testing.T) {
	var s SpinLock
	tok := s.Lock()
	s.Unlock(tok)

	tok2 := s.Lock()
	s.Unlock(tok2)
}

func TestExclLockSerializes(t *testing.T) {
	var x ExclLock
	x.Lock()
	released := make(chan struct{})
	go func() {
		x.Lock()
		close(released)
		x.Unlock()
	}()

	select {
	case <-released:
		t.Fatal("second locker acquired while held")
	case <-time.After(10 * time.Millisecond):
	}
	x.Unlock()

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("second locker never acquired after release")
	}
}
