// Package sock implements the socket layer: 224 statically allocated
// descriptors (1-31 well-known, 32-223 dynamic), each owning a queue
// of network buffers and an event count that signals arrival.
package sock

import (
	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/netbuf"
	"github.com/aegisos/kernel/internal/status"
)

const (
	MinWellKnown = 1
	MaxWellKnown = 31
	MinDynamic   = 32
	MaxDynamic   = 223
	NumSockets   = MaxDynamic + 1
)

// Packet is the metadata a caller exchanges with Put/Get. The fixed
// trailer offsets the original stores this at inside the buffer are
// modeled here as ordinary struct fields; wire/buffer (de)serializing
// lives at the edge that actually crosses the network.
type Packet struct {
	Hdr     *netbuf.Header
	Data    []*netbuf.DataPage
	DataLen uint32
	Hdr1    uint32
	Hdr2    uint32
	next    *Packet
}

// PutFlags controls Put's preconditions.
type PutFlags uint8

const (
	NeedsOpen PutFlags = 1 << iota
)

// Protocol describes a socket's fixed configuration, set at
// allocation time.
type Protocol struct {
	QueueDepth  int
	BufferPages int
}

// Socket is one descriptor slot.
type Socket struct {
	lock ec.SpinLock
	ec   ec.EventCount

	number     int
	allocated  bool
	open       bool
	protocol   Protocol
	maxQueue   int

	head, tail *Packet
	count      int
}

// Table is the fixed socket array.
type Table struct {
	sockets   [NumSockets]*Socket
	freeList  []int // numbers 32..223 not currently allocated
}

func New() *Table {
	t := &Table{}
	for i := range t.sockets {
		t.sockets[i] = &Socket{number: i}
		t.sockets[i].ec.Init()
	}
	for n := MaxDynamic; n >= MinDynamic; n-- {
		t.freeList = append(t.freeList, n)
	}
	return t
}

// Open claims a well-known socket number if it is currently free.
func (t *Table) Open(n int, proto Protocol) (*Socket, status.Code) {
	if n < MinWellKnown || n > MaxWellKnown {
		return nil, status.InvalidBlock
	}
	s := t.sockets[n]
	tok := s.lock.Lock()
	defer s.lock.Unlock(tok)
	if s.allocated {
		return nil, status.VolumeInUse
	}
	s.allocated = true
	s.open = true
	s.protocol = proto
	s.maxQueue = proto.QueueDepth
	return s, status.OK
}

// Allocate pops a dynamic socket number from the free list.
func (t *Table) Allocate(proto Protocol) (*Socket, status.Code) {
	if len(t.freeList) == 0 {
		return nil, status.VolumeTableFull
	}
	n := t.freeList[len(t.freeList)-1]
	t.freeList = t.freeList[:len(t.freeList)-1]
	s := t.sockets[n]
	tok := s.lock.Lock()
	s.allocated = true
	s.protocol = proto
	s.maxQueue = proto.QueueDepth
	s.lock.Unlock(tok)
	return s, status.OK
}

// Release returns a dynamic socket to the free list.
func (t *Table) Release(s *Socket) {
	tok := s.lock.Lock()
	s.allocated = false
	s.open = false
	s.head, s.tail, s.count = nil, nil, 0
	s.lock.Unlock(tok)
	if s.number >= MinDynamic {
		t.freeList = append(t.freeList, s.number)
	}
}

func (s *Socket) Number() int   { return s.number }
func (s *Socket) IsOpen() bool  { return s.open }
func (s *Socket) QueueCount() int {
	tok := s.lock.Lock()
	defer s.lock.Unlock(tok)
	return s.count
}

// EventCount exposes the socket's arrival event count for MSG's
// multi-way waits.
func (s *Socket) EventCount() *ec.EventCount { return &s.ec }

// Put enqueues pkt. Preconditions: allocated, and also open when the
// caller passes NeedsOpen.
func (s *Socket) Put(pkt *Packet, flags PutFlags) status.Code {
	tok := s.lock.Lock()
	if !s.allocated {
		s.lock.Unlock(tok)
		return status.VolumeNotMounted
	}
	if flags&NeedsOpen != 0 && !s.open {
		s.lock.Unlock(tok)
		return status.BadMountState
	}
	if s.count >= s.maxQueue {
		s.lock.Unlock(tok)
		return status.DiskFull // queue full; shares the "no room" shape
	}
	pkt.next = nil
	if s.tail != nil {
		s.tail.next = pkt
	} else {
		s.head = pkt
	}
	s.tail = pkt
	s.count++
	s.lock.Unlock(tok)
	s.ec.Advance()
	return status.OK
}

// Get pops the head packet, or nil if the queue is empty.
func (s *Socket) Get() *Packet {
	tok := s.lock.Lock()
	defer s.lock.Unlock(tok)
	if s.head == nil {
		return nil
	}
	p := s.head
	s.head = p.next
	if s.head == nil {
		s.tail = nil
	}
	s.count--
	p.next = nil
	return p
}
