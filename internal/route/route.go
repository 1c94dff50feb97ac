// Package route implements the eight fixed routing ports: lookup by
// (network, socket), control dispatch, and the inject/extract path
// user-level routing daemons use to move packets on and off the
// network.
package route

import (
	"sync"

	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/sock"
	"github.com/aegisos/kernel/internal/status"
)

const NumPorts = 8

type PortType int

const (
	PortLocal PortType = iota
	PortRouting
)

// Port is one fixed routing endpoint.
type Port struct {
	Network ktypes.NodeNum
	Type    PortType
	Socket  *sock.Socket
	Active  bool
	ec      ec.EventCount

	outMu sync.Mutex
	out   []OutPacket
}

// OutPacket is a queued outbound packet awaiting a user-level routing
// daemon to drain via Outgoing.
type OutPacket struct {
	NextHop ktypes.NodeNum
	Data    []byte
}

// Table is the fixed 8-port array.
type Table struct {
	mu    sync.Mutex
	ports [NumPorts]*Port
}

func New() *Table {
	t := &Table{}
	for i := range t.ports {
		t.ports[i] = &Port{}
		t.ports[i].ec.Init()
	}
	return t
}

// FindPort returns the active port bound to (net, s), if any.
func (t *Table) FindPort(net ktypes.NodeNum, s *sock.Socket) (*Port, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.ports {
		if p.Active && p.Network == net && p.Socket == s {
			return p, true
		}
	}
	return nil, false
}

// FindPortP returns the active port bound to socket s regardless of
// network, the form callers use when they already know the socket.
func (t *Table) FindPortP(s *sock.Socket) (*Port, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.ports {
		if p.Active && p.Socket == s {
			return p, true
		}
	}
	return nil, false
}

// Op identifies a Service control request.
type Op int

const (
	OpBind Op = iota
	OpUnbind
)

// Service binds or unbinds a port per op. Binding requires a free
// slot and enforces at most one port per (network, socket).
func (t *Table) Service(op Op, ptype PortType, net ktypes.NodeNum, s *sock.Socket) (*Port, status.Code) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch op {
	case OpBind:
		for _, p := range t.ports {
			if p.Active && p.Network == net && p.Socket == s {
				return nil, status.VolumeInUse
			}
		}
		for _, p := range t.ports {
			if !p.Active {
				p.Type = ptype
				p.Network = net
				p.Socket = s
				p.Active = true
				return p, status.OK
			}
		}
		return nil, status.VolumeTableFull
	case OpUnbind:
		for _, p := range t.ports {
			if p.Active && p.Network == net && p.Socket == s {
				p.Active = false
				p.Socket = nil
				return p, status.OK
			}
		}
		return nil, status.VolumeNotMounted
	default:
		return nil, status.InvalidBlock
	}
}

const minPacket = 4 // opcode/word minimum a validated packet must carry

func checksum(data []byte) uint32 {
	var sum uint32
	for _, b := range data {
		sum = sum*31 + uint32(b)
	}
	return sum
}

// Incoming is how a user-level routing daemon hands a packet it
// received off-node to this port for local delivery.
func (p *Port) Incoming(data []byte) status.Code {
	if len(data) < minPacket {
		return status.InvalidBlock
	}
	if p.Socket == nil {
		return status.VolumeNotMounted
	}
	_ = checksum(data)
	pkt := &sock.Packet{DataLen: uint32(len(data))}
	return p.Socket.Put(pkt, 0)
}

// Outgoing dequeues the next packet a routing daemon should transmit.
func (p *Port) Outgoing() (OutPacket, bool) {
	p.outMu.Lock()
	defer p.outMu.Unlock()
	if len(p.out) == 0 {
		return OutPacket{}, false
	}
	pkt := p.out[0]
	p.out = p.out[1:]
	return pkt, true
}

// Enqueue stages a packet for Outgoing to drain. Like Incoming, it
// rejects packets shorter than minPacket and computes a checksum that
// is neither stored nor compared.
func (p *Port) Enqueue(nextHop ktypes.NodeNum, data []byte) status.Code {
	if len(data) < minPacket {
		return status.InvalidBlock
	}
	_ = checksum(data)
	p.outMu.Lock()
	p.out = append(p.out, OutPacket{NextHop: nextHop, Data: data})
	p.outMu.Unlock()
	p.ec.Advance()
	return status.OK
}
