package netbuf

import (
	"testing"
	"time"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/stretchr/testify/require"
)

type fakePages struct {
	next ktypes.PageNum
}

func (f *fakePages) AllocPage() ktypes.PageNum {
	f.next++
	return f.next
}
func (f *fakePages) FreePage(ktypes.PageNum) {}

func TestGetPutHeaderRoundTrips(t *testing.T) {
	p := New(640, &fakePages{})
	h := p.GetHdr(OrdinaryCaller)
	require.NotNil(t, h)
	p.PutHdr(h)

	h2 := p.GetHdr(OrdinaryCaller)
	require.Equal(t, h.Slot, h2.Slot)
}

func TestOrdinaryCallerGrowsDataPoolRatherThanBlocking(t *testing.T) {
	p := New(20, &fakePages{})
	require.Equal(t, 0, p.FreeDataPages())

	d := p.GetDat(OrdinaryCaller)
	require.NotNil(t, d)
	p.PutDat(d)
	require.Equal(t, 1, p.FreeDataPages())
}

func TestNetworkServerCallerBlocksUntilDataPageReturned(t *testing.T) {
	p := New(20, &fakePages{})
	d := p.GetDat(OrdinaryCaller)

	done := make(chan *DataPage, 1)
	go func() {
		done <- p.GetDat(NetworkServerCaller)
	}()

	select {
	case <-done:
		t.Fatal("network server caller must block while pool is empty")
	case <-time.After(20 * time.Millisecond):
	}

	p.PutDat(d)

	select {
	case got := <-done:
		require.NotNil(t, got)
	case <-time.After(time.Second):
		t.Fatal("network server caller never woke after a page was returned")
	}
}

func TestPutDatTrimsAbovePoolCeiling(t *testing.T) {
	fp := &fakePages{}
	p := New(20, fp)
	var pages []*DataPage
	for i := 0; i < p.ceiling; i++ {
		pages = append(pages, p.GetDat(OrdinaryCaller))
	}
	extra := &DataPage{Page: fp.AllocPage()}

	for _, d := range pages {
		p.PutDat(d)
	}
	require.Equal(t, p.ceiling, p.FreeDataPages())

	p.PutDat(extra)
	require.Equal(t, p.ceiling, p.FreeDataPages())
}
