// Package msg layers address-space ownership and a three-way wait
// (socket, clock, quit) over the socket table.
package msg

import (
	"sync"

	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/sock"
	"github.com/aegisos/kernel/internal/status"
)

// Owners tracks, per socket number, which address spaces hold a
// reference, as a 64-bit bitmap. The bitmap reaching zero is the
// signal that the socket may actually be closed.
type Owners struct {
	mu     sync.Mutex
	bitmap map[int]uint64
}

func NewOwners() *Owners {
	return &Owners{bitmap: make(map[int]uint64)}
}

func (o *Owners) bit(asid ktypes.ASID) uint64 { return 1 << (uint(asid) & 63) }

// OpenMsg requires the socket currently be unowned, then grants
// ownership to asid.
func (o *Owners) OpenMsg(s *sock.Socket, asid ktypes.ASID) status.Code {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bitmap[s.Number()] != 0 {
		return status.VolumeInUse
	}
	o.bitmap[s.Number()] = o.bit(asid)
	return status.OK
}

// CloseMsg clears only asid's bit. The caller should treat a true
// return as "this was the last owner, the socket is free".
func (o *Owners) CloseMsg(s *sock.Socket, asid ktypes.ASID) (lastOwner bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bitmap[s.Number()] &^= o.bit(asid)
	lastOwner = o.bitmap[s.Number()] == 0
	return
}

// Owned reports whether asid currently owns s.
func (o *Owners) Owned(s *sock.Socket, asid ktypes.ASID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.bitmap[s.Number()]&o.bit(asid) != 0
}

// Fork propagates ownership from parent to child for every socket the
// parent owns.
func (o *Owners) Fork(parent, child ktypes.ASID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pbit := o.bit(parent)
	cbit := o.bit(child)
	for n, bm := range o.bitmap {
		if bm&pbit != 0 {
			o.bitmap[n] |= cbit
		}
	}
}

// ExitCleanup closes every socket asid owns, invoking onClose for
// each one that becomes fully unowned.
func (o *Owners) ExitCleanup(asid ktypes.ASID, onClose func(number int)) {
	o.mu.Lock()
	abit := o.bit(asid)
	var closed []int
	for n, bm := range o.bitmap {
		if bm&abit != 0 {
			o.bitmap[n] = bm &^ abit
			if o.bitmap[n] == 0 {
				closed = append(closed, n)
			}
		}
	}
	o.mu.Unlock()
	for _, n := range closed {
		if onClose != nil {
			onClose(n)
		}
	}
}

// WaitReason identifies which of the three event counts satisfied a
// Wait call.
type WaitReason int

const (
	WaitPacket WaitReason = iota
	WaitTimeout
	WaitQuit
)

// QuitLatch is the per-ASID quit event count plus the latched value a
// handler consumes exactly once.
type QuitLatch struct {
	mu     sync.Mutex
	ec     ec.EventCount
	latched uint32
	seen    uint32
}

func NewQuitLatch() *QuitLatch {
	q := &QuitLatch{}
	q.ec.Init()
	return q
}

// Signal advances the quit event count, latching the pre-advance
// value so a subsequent handler observes exactly one quit event.
func (q *QuitLatch) Signal() {
	q.mu.Lock()
	q.latched = q.ec.Read()
	q.mu.Unlock()
	q.ec.Advance()
}

// Consume returns the latched value once, then clears it so the same
// quit is never re-delivered.
func (q *QuitLatch) Consume() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	v := q.latched
	q.latched = 0
	return v
}

// Wait blocks on s's arrival event count, clock's tick event count
// (the timeout source), and quit, returning whichever fired and the
// value the quit latch held at that point when WaitQuit is returned.
func Wait(s *sock.Socket, clock *ec.EventCount, clockTarget uint32, quit *QuitLatch) (WaitReason, uint32) {
	members := []ec.Member{
		{EC: s.EventCount(), Target: s.EventCount().Read() + 1},
		{EC: clock, Target: clockTarget},
		{EC: &quit.ec, Target: quit.ec.Read() + 1},
	}
	switch ec.WaitAny(members) {
	case 0:
		return WaitPacket, 0
	case 1:
		return WaitTimeout, 0
	default:
		return WaitQuit, quit.Consume()
	}
}

// Sar (send-and-receive) puts req onto dst then waits for a reply on
// src, combining both so request/response clients need no
// second-level locking.
func Sar(dst, src *sock.Socket, req *sock.Packet, clock *ec.EventCount, clockTarget uint32, quit *QuitLatch) (*sock.Packet, status.Code) {
	if st := dst.Put(req, 0); !st.OK() {
		return nil, st
	}
	reason, latched := Wait(src, clock, clockTarget, quit)
	switch reason {
	case WaitPacket:
		return src.Get(), status.OK
	case WaitTimeout:
		return nil, status.Timeout
	default:
		_ = latched
		return nil, status.QuitSignalled
	}
}
