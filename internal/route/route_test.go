package route

import (
	"testing"

	"github.com/aegisos/kernel/internal/sock"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

func TestBindUnbindRoundTrips(t *testing.T) {
	rt := New()
	st := sock.New()
	s, code := st.Allocate(sock.Protocol{QueueDepth: 4})
	require.True(t, code.OK())

	p, code := rt.Service(OpBind, PortRouting, 7, s)
	require.True(t, code.OK())
	require.NotNil(t, p)

	found, ok := rt.FindPortP(s)
	require.True(t, ok)
	require.Same(t, p, found)

	_, code = rt.Service(OpBind, PortRouting, 7, s)
	require.Equal(t, status.VolumeInUse, code)

	_, code = rt.Service(OpUnbind, PortRouting, 7, s)
	require.True(t, code.OK())
	_, ok = rt.FindPortP(s)
	require.False(t, ok)
}

func TestBindExhaustsPortTable(t *testing.T) {
	rt := New()
	st := sock.New()
	for i := 0; i < NumPorts; i++ {
		s, _ := st.Allocate(sock.Protocol{QueueDepth: 1})
		_, code := rt.Service(OpBind, PortLocal, 1, s)
		require.True(t, code.OK())
	}
	extra, _ := st.Allocate(sock.Protocol{QueueDepth: 1})
	_, code := rt.Service(OpBind, PortLocal, 1, extra)
	require.Equal(t, status.VolumeTableFull, code)
}

func TestIncomingDeliversToBoundSocket(t *testing.T) {
	rt := New()
	st := sock.New()
	s, _ := st.Allocate(sock.Protocol{QueueDepth: 4})
	p, _ := rt.Service(OpBind, PortLocal, 1, s)

	require.True(t, p.Incoming([]byte{1, 2, 3, 4}).OK())
	require.Equal(t, 1, s.QueueCount())

	require.Equal(t, status.InvalidBlock, p.Incoming([]byte{1}))
}

func TestEnqueueOutgoingDrainsFIFO(t *testing.T) {
	rt := New()
	st := sock.New()
	s, _ := st.Allocate(sock.Protocol{QueueDepth: 4})
	p, _ := rt.Service(OpBind, PortRouting, 2, s)

	require.True(t, p.Enqueue(3, []byte{9, 9, 9, 9}).OK())
	require.True(t, p.Enqueue(4, []byte{8, 8, 8, 8}).OK())

	first, ok := p.Outgoing()
	require.True(t, ok)
	require.EqualValues(t, 3, first.NextHop)

	second, ok := p.Outgoing()
	require.True(t, ok)
	require.EqualValues(t, 4, second.NextHop)

	_, ok = p.Outgoing()
	require.False(t, ok)
}
