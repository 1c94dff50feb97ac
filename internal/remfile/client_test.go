package remfile

import (
	"testing"
	"time"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

type dropAllTransport struct{ sends int }

func (d *dropAllTransport) Send(dest ktypes.NodeNum, req Request) status.Code {
	d.sends++
	return status.OK
}
func (d *dropAllTransport) Recv(timeout time.Duration) (Response, bool) { return Response{}, false }

type fixedResponsiveness struct{ likely bool }

func (f fixedResponsiveness) Estimate(ktypes.NodeNum) time.Duration   { return time.Millisecond }
func (f fixedResponsiveness) IsLikelyToAnswer(ktypes.NodeNum) bool { return f.likely }

func TestDoRequestGivesUpAfterMaxRetries(t *testing.T) {
	tr := &dropAllTransport{}
	c := NewClient(tr, fixedResponsiveness{likely: false}, RetryPolicy{
		MaxRetries: 3, RetryAdder: 0, MotherNode: 99,
	})

	_, st := c.DoRequest(1, Request{Opcode: OpTest})
	require.Equal(t, status.RemoteNodeFailedToRespond, st)
	require.True(t, c.Invisible(1))
	require.LessOrEqual(t, tr.sends, 4)
}

type echoTransport struct {
	pending Request
}

func (e *echoTransport) Send(dest ktypes.NodeNum, req Request) status.Code {
	e.pending = req
	return status.OK
}

func (e *echoTransport) Recv(timeout time.Duration) (Response, bool) {
	return makeResponse(e.pending.Opcode, status.OK, nil, false), true
}

func TestDoRequestSuccessValidatesOpcode(t *testing.T) {
	tr := &echoTransport{}
	c := NewClient(tr, fixedResponsiveness{likely: true}, RetryPolicy{MaxRetries: 3})

	resp, st := c.DoRequest(1, Request{Opcode: OpTest})
	require.True(t, st.OK())
	require.Equal(t, uint16(OpTest)+1, resp.OpcodePlus)
}

func TestMotherNodeRetriesWithoutMarkingInvisible(t *testing.T) {
	tr := &dropAllTransport{}
	c := NewClient(tr, fixedResponsiveness{likely: false}, RetryPolicy{MaxRetries: 1, MotherNode: 1})

	done := make(chan struct{})
	go func() {
		c.DoRequest(1, Request{Opcode: OpTest})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("mother-node request must retry indefinitely, not give up")
	default:
	}
	require.False(t, c.Invisible(1))
}
