package msg

import (
	"testing"
	"time"

	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/sock"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

func TestOpenCloseMsgRoundTrips(t *testing.T) {
	table := sock.New()
	s, st := table.Open(5, sock.Protocol{QueueDepth: 4})
	require.True(t, st.OK())

	owners := NewOwners()
	require.True(t, owners.OpenMsg(s, 1).OK())
	require.True(t, owners.Owned(s, 1))

	last := owners.CloseMsg(s, 1)
	require.True(t, last)
	require.False(t, owners.Owned(s, 1))
}

func TestForkPropagatesOwnership(t *testing.T) {
	table := sock.New()
	s, _ := table.Open(6, sock.Protocol{QueueDepth: 4})
	owners := NewOwners()
	owners.OpenMsg(s, 1)

	owners.Fork(1, 2)
	require.True(t, owners.Owned(s, 2))
	require.True(t, owners.Owned(s, 1))
}

func TestQuitSignalWakesWait(t *testing.T) {
	table := sock.New()
	s, _ := table.Open(7, sock.Protocol{QueueDepth: 4})

	var clock ec.EventCount
	clock.Init()
	quit := NewQuitLatch()

	done := make(chan WaitReason, 1)
	go func() {
		reason, _ := Wait(s, &clock, clock.Read()+1000, quit)
		done <- reason
	}()

	time.Sleep(20 * time.Millisecond)
	quit.Signal()

	select {
	case reason := <-done:
		require.Equal(t, WaitQuit, reason)
	case <-time.After(time.Second):
		t.Fatal("wait did not wake on quit signal")
	}
}

func TestSarRoundTrip(t *testing.T) {
	table := sock.New()
	dst, _ := table.Open(8, sock.Protocol{QueueDepth: 4})
	src, _ := table.Open(9, sock.Protocol{QueueDepth: 4})
	var clock ec.EventCount
	clock.Init()
	quit := NewQuitLatch()

	go func() {
		p := dst.Get()
		for p == nil {
			time.Sleep(time.Millisecond)
			p = dst.Get()
		}
		src.Put(&sock.Packet{DataLen: p.DataLen}, 0)
	}()

	reply, st := Sar(dst, src, &sock.Packet{DataLen: 42}, &clock, clock.Read()+1, quit)
	require.True(t, st.OK())
	require.NotNil(t, reply)
	require.EqualValues(t, 42, reply.DataLen)
	_ = ktypes.ASID(0)
	_ = status.OK
}
