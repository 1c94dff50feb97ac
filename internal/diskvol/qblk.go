package diskvol

import (
	"sync"

	"github.com/aegisos/kernel/internal/ktypes"
)

// QBlk is one queue block a driver chains onto an outstanding I/O
// request. Drivers submit work by linking QBlks together and signal
// completion through the per-process event count carried by the
// owning Slot.
type QBlk struct {
	Block ktypes.BlockNum
	Next  *QBlk
}

// qblkPool hands out QBlk chains from a private free list instead of
// the general allocator, so driver submission never competes with
// unrelated kernel allocation traffic.
type qblkPool struct {
	mu   sync.Mutex
	free *QBlk
}

func (p *qblkPool) Alloc(count int) *QBlk {
	p.mu.Lock()
	defer p.mu.Unlock()
	var head, tail *QBlk
	for i := 0; i < count; i++ {
		var q *QBlk
		if p.free != nil {
			q = p.free
			p.free = p.free.Next
			q.Next = nil
		} else {
			q = &QBlk{}
		}
		if head == nil {
			head = q
			tail = q
		} else {
			tail.Next = q
			tail = q
		}
	}
	return head
}

func (p *qblkPool) Return(list *QBlk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for list != nil {
		next := list.Next
		list.Next = p.free
		p.free = list
		list = next
	}
}
