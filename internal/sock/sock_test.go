package sock

import (
	"testing"

	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

func TestOpenRejectsOutsideWellKnownRange(t *testing.T) {
	tbl := New()
	_, code := tbl.Open(MaxWellKnown+1, Protocol{QueueDepth: 4})
	require.Equal(t, status.InvalidBlock, code)
}

func TestOpenRejectsAlreadyAllocated(t *testing.T) {
	tbl := New()
	_, code := tbl.Open(5, Protocol{QueueDepth: 4})
	require.True(t, code.OK())

	_, code = tbl.Open(5, Protocol{QueueDepth: 4})
	require.Equal(t, status.VolumeInUse, code)
}

func TestAllocateReleaseReturnsNumberToFreeList(t *testing.T) {
	tbl := New()
	s, code := tbl.Allocate(Protocol{QueueDepth: 2})
	require.True(t, code.OK())
	n := s.Number()
	require.GreaterOrEqual(t, n, MinDynamic)

	tbl.Release(s)
	s2, code := tbl.Allocate(Protocol{QueueDepth: 2})
	require.True(t, code.OK())
	require.Equal(t, n, s2.Number())
}

func TestPutGetFIFOAndQueueDepthEnforced(t *testing.T) {
	tbl := New()
	s, _ := tbl.Allocate(Protocol{QueueDepth: 2})

	require.True(t, s.Put(&Packet{DataLen: 1}, 0).OK())
	require.True(t, s.Put(&Packet{DataLen: 2}, 0).OK())
	require.Equal(t, status.DiskFull, s.Put(&Packet{DataLen: 3}, 0))

	first := s.Get()
	require.EqualValues(t, 1, first.DataLen)
	second := s.Get()
	require.EqualValues(t, 2, second.DataLen)
	require.Nil(t, s.Get())
}

func TestPutRequiresOpenWhenFlagSet(t *testing.T) {
	tbl := New()
	s, _ := tbl.Allocate(Protocol{QueueDepth: 2})
	require.Equal(t, status.BadMountState, s.Put(&Packet{}, NeedsOpen))
}

func TestPutAdvancesEventCount(t *testing.T) {
	tbl := New()
	s, _ := tbl.Allocate(Protocol{QueueDepth: 2})
	before := s.EventCount().Read()
	s.Put(&Packet{}, 0)
	require.Greater(t, s.EventCount().Read(), before)
}
