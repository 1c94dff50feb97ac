// Package netbuf implements the network buffer pool: a fixed-count
// pool of 1 KiB headers plus a fixed-count pool of 1 KiB data pages,
// both reclaimed through intrusive free lists. Non-network callers
// never block on a starved pool; only threads identified as network
// server threads do, via the pool's event count.
package netbuf

import (
	"sync"

	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
)

const (
	// PageSize is the fixed unit size for both headers and data pages.
	PageSize = 1024

	// HeaderVASlots is the size of the reserved virtual-address range
	// headers are mapped into.
	HeaderVASlots = 192

	minHeaders = 6
	maxHeaders = 64
	minData    = 10
)

// Header is one 1 KiB staging buffer for packet headers and metadata.
type Header struct {
	Slot int // index into the reserved virtual-address range
	Data [PageSize]byte
	next int
}

// DataPage is one 1 KiB payload page.
type DataPage struct {
	Page ktypes.PageNum
	Data [PageSize]byte
	next int
}

// PageSource is the external physical-page allocator this pool grows
// into when non-network callers need a page it doesn't have on hand.
// It stands in for calloc_page from the memory-management subsystem
// this package does not implement.
type PageSource interface {
	AllocPage() ktypes.PageNum
	FreePage(ktypes.PageNum)
}

// Pool is the network buffer pool: header slots plus data pages, each
// with their own free list and availability event count.
type Pool struct {
	mu sync.Mutex

	headers     []*Header
	headerFree  int // index of first free header, -1 if none
	headerEC    ec.EventCount

	dataPages []*DataPage
	dataFree  int
	dataEC    ec.EventCount

	ceiling int // pageable_pages/2, upper bound on pooled data pages
	floor   int

	pages PageSource
}

// New builds a pool sized from realPages, the host's pageable page
// count, per the clamp [6,64] for headers and [10, realPages/2] for
// data pages.
func New(realPages int, pages PageSource) *Pool {
	nHeaders := clamp(realPages/64, minHeaders, maxHeaders)
	ceiling := realPages / 2
	if ceiling < minData {
		ceiling = minData
	}

	p := &Pool{
		headers:   make([]*Header, nHeaders),
		dataPages: make([]*DataPage, 0, ceiling),
		ceiling:   ceiling,
		floor:     minData,
		pages:     pages,
	}
	p.headerEC.Init()
	p.dataEC.Init()

	for i := 0; i < nHeaders; i++ {
		p.headers[i] = &Header{Slot: i, next: i + 1}
	}
	if nHeaders > 0 {
		p.headers[nHeaders-1].next = -1
	}
	p.headerFree = 0
	if nHeaders == 0 {
		p.headerFree = -1
	}
	p.dataFree = -1
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// CallerKind is consulted by GetHdr/GetDat to decide whether the
// calling goroutine may block on pool exhaustion instead of growing
// the pool on demand.
type CallerKind int

const (
	OrdinaryCaller CallerKind = iota
	NetworkServerCaller
)

// GetHdr allocates a header buffer. Network server callers block on
// the pool's event count when none are free; other callers grow the
// reserved VA range up to maxHeaders and return immediately, so they
// never sleep on a starved pool. Only once the range is fully grown
// does an ordinary caller fall back to waiting like a server thread.
func (p *Pool) GetHdr(kind CallerKind) *Header {
	for {
		p.mu.Lock()
		if p.headerFree != -1 {
			idx := p.headerFree
			h := p.headers[idx]
			p.headerFree = h.next
			h.next = -2 // in use
			p.mu.Unlock()
			return h
		}
		if kind != NetworkServerCaller && len(p.headers) < maxHeaders {
			h := &Header{Slot: len(p.headers), next: -2}
			p.headers = append(p.headers, h)
			p.mu.Unlock()
			return h
		}
		target := p.headerEC.Read() + 1
		p.mu.Unlock()
		p.headerEC.Wait(target)
	}
}

// PutHdr returns h to the free list and wakes every waiter.
func (p *Pool) PutHdr(h *Header) {
	p.mu.Lock()
	h.next = p.headerFree
	p.headerFree = h.Slot
	p.mu.Unlock()
	p.headerEC.Advance()
}

// GetDat allocates a data page. Network server callers block when the
// pool is empty; other callers grow the pool directly from the page
// source up to the ceiling so they never sleep on a starved pool.
func (p *Pool) GetDat(kind CallerKind) *DataPage {
	for {
		p.mu.Lock()
		if p.dataFree != -1 {
			idx := p.dataFree
			d := p.dataPages[idx]
			p.dataFree = d.next
			d.next = -2
			p.mu.Unlock()
			return d
		}
		if kind != NetworkServerCaller && len(p.dataPages) < p.ceiling {
			d := &DataPage{Page: p.pages.AllocPage(), next: -2}
			p.dataPages = append(p.dataPages, d)
			p.mu.Unlock()
			return d
		}
		target := p.dataEC.Read() + 1
		p.mu.Unlock()
		p.dataEC.Wait(target)
	}
}

// PutDat returns d. A page that belongs to the pool (the pool never
// grows past its ceiling) is re-linked to the free list; a page the
// pool does not hold is returned to the page source outright. The
// pool itself is never shrunk.
func (p *Pool) PutDat(d *DataPage) {
	p.mu.Lock()
	if len(p.dataPages) <= p.ceiling {
		idx := -1
		for i, x := range p.dataPages {
			if x == d {
				idx = i
				break
			}
		}
		if idx >= 0 {
			d.next = p.dataFree
			p.dataFree = idx
			p.mu.Unlock()
			p.dataEC.Advance()
			return
		}
	}
	p.mu.Unlock()
	p.pages.FreePage(d.Page)
}

// FreeDataPages reports the number of data pages currently on the
// free list, used by tests and by the resource-ceiling invariant.
func (p *Pool) FreeDataPages() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for i := p.dataFree; i != -1; {
		n++
		i = p.dataPages[i].next
	}
	return n
}
