// Package diskvol implements the volume manager: a table of mount
// slots coordinating physical and logical volumes, their mount state
// machine, and dispatch to a per-device driver vtable. It implements
// dbuf.Device, so the disk buffer cache routes every miss and
// writeback through here.
package diskvol

import (
	"sync"

	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
	"github.com/google/uuid"
)

// MountState is one node of the per-slot mount state machine.
type MountState int

const (
	StateFree MountState = iota
	StateReserved
	StateAssigned
	StateBusy
	StateMirror
)

// MaxSlots bounds the mount table, matching the fixed slot range 1-10.
const MaxSlots = 10

// Driver is the vtable every physical device exposes. It stands in
// for the hardware-specific driver this package does not implement.
type Driver interface {
	Init(unit int) status.Code
	DoIO(unit int, block ktypes.BlockNum, buf []byte, write bool) status.Code
	Revalidate(unit int) status.Code
	ErrorQueue(unit int) []status.Code
}

// Slot is one entry in the mount table.
type Slot struct {
	UID        uuid.UUID
	AddrStart  uint64
	AddrEnd    uint64
	LVStart    ktypes.BlockNum // 0 for physical volumes
	State      MountState
	Owner      ktypes.ASID
	Driver     Driver
	Unit       int
	ioDone     ec.EventCount
}

// Manager owns the mount table and dispatches I/O to the owning
// slot's driver on behalf of dbuf.Cache.
type Manager struct {
	mu    sync.Mutex
	slots [MaxSlots + 1]*Slot // 1-indexed, slot 0 unused
	qblks qblkPool
}

// AllocQBlks draws count queue blocks from the private driver-submit
// pool, bypassing the general kernel allocator.
func (m *Manager) AllocQBlks(count int) *QBlk { return m.qblks.Alloc(count) }

// ReturnQBlks returns a chain of queue blocks to the pool.
func (m *Manager) ReturnQBlks(list *QBlk) { m.qblks.Return(list) }

func New() *Manager {
	return &Manager{}
}

// PVAssign reserves a free slot for a physical volume, moving it to
// StateReserved.
func (m *Manager) PVAssign(owner ktypes.ASID, drv Driver, unit int) (ktypes.VolIndex, status.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := 1; i <= MaxSlots; i++ {
		if m.slots[i] == nil || m.slots[i].State == StateFree {
			s := &Slot{UID: uuid.New(), State: StateReserved, Owner: owner, Driver: drv, Unit: unit}
			s.ioDone.Init()
			m.slots[i] = s
			return ktypes.VolIndex(i), status.OK
		}
	}
	return 0, status.VolumeTableFull
}

// PVMount moves a reserved slot to StateAssigned and initializes its
// driver.
func (m *Manager) PVMount(idx ktypes.VolIndex, caller ktypes.ASID) status.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.at(idx)
	if err != status.OK {
		return err
	}
	if s.State != StateReserved {
		return status.BadMountState
	}
	if s.Owner != caller {
		return status.WrongOwner
	}
	if st := s.Driver.Init(s.Unit); !st.OK() {
		return st
	}
	s.State = StateAssigned
	return status.OK
}

// LVAssign carves a logical volume out of an already-assigned
// physical slot.
func (m *Manager) LVAssign(pv ktypes.VolIndex, lvStart ktypes.BlockNum, owner ktypes.ASID) (ktypes.VolIndex, status.Code) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pvs, err := m.at(pv)
	if err != status.OK {
		return 0, err
	}
	if pvs.State != StateAssigned {
		return 0, status.BadMountState
	}
	for i := 1; i <= MaxSlots; i++ {
		if m.slots[i] == nil || m.slots[i].State == StateFree {
			s := &Slot{UID: uuid.New(), LVStart: lvStart, State: StateReserved, Owner: owner, Driver: pvs.Driver, Unit: pvs.Unit}
			s.ioDone.Init()
			m.slots[i] = s
			return ktypes.VolIndex(i), status.OK
		}
	}
	return 0, status.VolumeTableFull
}

// LVMount moves a logical volume's slot to StateBusy, the state DBUF
// I/O is permitted against.
func (m *Manager) LVMount(idx ktypes.VolIndex, caller ktypes.ASID) status.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.at(idx)
	if err != status.OK {
		return err
	}
	if s.State != StateReserved && s.State != StateAssigned {
		return status.BadMountState
	}
	if s.Owner != caller {
		return status.WrongOwner
	}
	s.State = StateBusy
	return status.OK
}

// Dismount releases a slot back to StateFree. Write-protected and
// storage-stopped errors are swallowed: a read-only mount may dismount
// cleanly even though the medium refused the final flush.
func (m *Manager) Dismount(idx ktypes.VolIndex, caller ktypes.ASID, flush func() status.Code) status.Code {
	m.mu.Lock()
	s, err := m.at(idx)
	if err != status.OK {
		m.mu.Unlock()
		return err
	}
	if s.Owner != caller {
		m.mu.Unlock()
		return status.WrongOwner
	}
	m.mu.Unlock()

	if flush != nil {
		if st := flush(); !st.OK() && !status.Transient(st) {
			return st
		}
	}

	m.mu.Lock()
	s.State = StateFree
	s.Owner = 0
	m.mu.Unlock()
	return status.OK
}

// Unassign returns an assigned slot to StateFree without an owner
// check, used for forced teardown (e.g. node-crash cleanup).
func (m *Manager) Unassign(idx ktypes.VolIndex) status.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.at(idx)
	if err != status.OK {
		return err
	}
	s.State = StateFree
	s.Owner = 0
	return status.OK
}

func (m *Manager) at(idx ktypes.VolIndex) (*Slot, status.Code) {
	if idx < 1 || int(idx) > MaxSlots || m.slots[idx] == nil {
		return nil, status.VolumeNotMounted
	}
	return m.slots[idx], status.OK
}

// State reports a slot's current mount state.
func (m *Manager) State(idx ktypes.VolIndex) MountState {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.at(idx)
	if err != status.OK {
		return StateFree
	}
	return s.State
}

// ReadBlock and WriteBlock implement dbuf.Device by dispatching to
// the owning slot's driver vtable.
func (m *Manager) ReadBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code {
	m.mu.Lock()
	s, err := m.at(vol)
	m.mu.Unlock()
	if err != status.OK {
		return err
	}
	if s.State != StateBusy && s.State != StateAssigned {
		return status.VolumeNotMounted
	}
	return s.Driver.DoIO(s.Unit, s.LVStart+block, buf, false)
}

func (m *Manager) WriteBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code {
	m.mu.Lock()
	s, err := m.at(vol)
	m.mu.Unlock()
	if err != status.OK {
		return err
	}
	if s.State != StateBusy && s.State != StateAssigned {
		return status.VolumeNotMounted
	}
	return s.Driver.DoIO(s.Unit, s.LVStart+block, buf, true)
}

var _ dbuf.Device = (*Manager)(nil)
