// Package dbuf implements the disk buffer cache: a fixed pool of
// entries cached by (volume, block), chained in an LRU list, with
// reference counting, dirty write-back, and wait-for-buffer
// semantics when every entry is pinned.
package dbuf

import (
	"sync"

	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
)

// BlockSize is the fixed size of every cached disk block.
const BlockSize = 1024

// minEntries and maxEntries bound the pool size computed from real
// memory at init: clamp(real_pages/64, 6, 64).
const (
	minEntries = 6
	maxEntries = 64
)

// Flags passed to GetBlock.
type GetFlags uint8

const (
	// AllowStorageStopped tells GetBlock to swallow a "stopped
	// storage" read failure instead of returning it.
	AllowStorageStopped GetFlags = 1 << iota
)

// SetFlags passed to SetBuff; more than one may be combined.
type SetFlags uint8

const (
	Dirty SetFlags = 1 << iota
	Writeback
	Invalidate
	Release
)

// Device performs the actual block I/O a cache miss or writeback
// needs. It is implemented by the volume manager, which dispatches to
// the per-device driver vtable; dbuf never talks to a driver directly.
type Device interface {
	ReadBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code
	WriteBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code
}

// entry is one slot in the cache.
type entry struct {
	vol      ktypes.VolIndex
	block    ktypes.BlockNum
	uid      ktypes.UID
	hint     uint32
	busy     bool
	dirty    bool
	valid    bool
	refcount int
	data     [BlockSize]byte

	prev, next int // LRU links, -1 sentinel
}

// Cache is the fixed-size LRU disk buffer pool.
type Cache struct {
	mu      sync.Mutex
	entries []entry
	head    int // MRU
	tail    int // LRU

	ec ec.EventCount

	dev Device

	troubleMu sync.Mutex
	trouble   map[ktypes.VolIndex]bool
}

// New builds a cache sized from realPages per the clamp(real_pages/64,
// 6, 64) rule, backed by dev for misses and writebacks.
func New(realPages int, dev Device) *Cache {
	n := realPages / 64
	if n < minEntries {
		n = minEntries
	}
	if n > maxEntries {
		n = maxEntries
	}
	c := &Cache{
		entries: make([]entry, n),
		dev:     dev,
		trouble: make(map[ktypes.VolIndex]bool),
	}
	c.ec.Init()
	for i := range c.entries {
		c.entries[i].prev = i - 1
		c.entries[i].next = i + 1
		c.entries[i].block = ktypes.BlockInvalid
	}
	c.entries[0].prev = -1
	c.entries[n-1].next = -1
	c.head = 0
	c.tail = n - 1
	return c
}

// Handle identifies a pinned cache entry returned to a caller.
type Handle struct {
	idx int
}

func (c *Cache) unlinkLocked(i int) {
	e := &c.entries[i]
	if e.prev != -1 {
		c.entries[e.prev].next = e.next
	} else {
		c.head = e.next
	}
	if e.next != -1 {
		c.entries[e.next].prev = e.prev
	} else {
		c.tail = e.prev
	}
	e.prev, e.next = -1, -1
}

func (c *Cache) pushHeadLocked(i int) {
	e := &c.entries[i]
	e.prev = -1
	e.next = c.head
	if c.head != -1 {
		c.entries[c.head].prev = i
	}
	c.head = i
	if c.tail == -1 {
		c.tail = i
	}
}

func (c *Cache) spliceToHeadLocked(i int) {
	if c.head == i {
		return
	}
	c.unlinkLocked(i)
	c.pushHeadLocked(i)
}

// GetBlock returns the cached buffer for (vol, block), reading it in
// on a miss and evicting the LRU idle victim when the cache is full.
// On hit it bumps the reference count and moves the entry to the MRU
// end. Concurrent callers for the same (vol, block) converge on the
// same handle.
func (c *Cache) GetBlock(vol ktypes.VolIndex, block ktypes.BlockNum, expected ktypes.UID, hint uint32, flags GetFlags) (Handle, status.Code) {
	for {
		c.mu.Lock()
		if idx, ok := c.findLocked(vol, block); ok {
			e := &c.entries[idx]
			if e.busy {
				target := c.ec.Read() + 1
				c.mu.Unlock()
				c.ec.Wait(target)
				continue
			}
			e.refcount++
			e.uid = expected
			e.hint = hint
			c.spliceToHeadLocked(idx)
			c.mu.Unlock()
			return Handle{idx}, status.OK
		}

		victim, ok := c.findVictimLocked()
		if !ok {
			target := c.ec.Read() + 1
			c.mu.Unlock()
			c.ec.Wait(target)
			continue
		}
		e := &c.entries[victim]
		if e.valid && e.dirty {
			e.busy = true
			c.mu.Unlock()

			wstat := c.dev.WriteBlock(e.vol, e.block, e.data[:])
			if !wstat.OK() {
				c.markTrouble(e.vol)
			}

			c.mu.Lock()
			e.dirty = false
			e.busy = false
			c.mu.Unlock()
			c.ec.Advance()
			continue
		}

		e.vol, e.block, e.uid, e.hint = vol, block, expected, hint
		e.busy = true
		c.mu.Unlock()

		rstat := c.dev.ReadBlock(vol, block, e.data[:])

		c.mu.Lock()
		if !rstat.OK() {
			if rstat == status.StorageModuleStopped && flags&AllowStorageStopped != 0 {
				// swallowed: leave the slot reusable, report success
				// with a zeroed block.
				for i := range e.data {
					e.data[i] = 0
				}
			} else {
				e.valid = false
				e.busy = false
				e.block = ktypes.BlockInvalid
				c.mu.Unlock()
				c.ec.Advance()
				return Handle{}, rstat | status.Code(1<<31)
			}
		}
		e.valid = true
		e.busy = false
		e.refcount = 1
		c.spliceToHeadLocked(victim)
		c.mu.Unlock()
		c.ec.Advance()
		return Handle{victim}, status.OK
	}
}

// findLocked matches on vol/block alone, not validity: a miss-path
// victim has its vol/block stamped and busy set before the disk read
// starts, with valid only set once the read completes. Gating on
// valid would let a second concurrent GetBlock for the same block
// miss the in-flight entry and issue a redundant read.
func (c *Cache) findLocked(vol ktypes.VolIndex, block ktypes.BlockNum) (int, bool) {
	if block == ktypes.BlockInvalid {
		return 0, false
	}
	for i := range c.entries {
		e := &c.entries[i]
		if e.vol == vol && e.block == block {
			return i, true
		}
	}
	return 0, false
}

// findVictimLocked scans from the LRU tail for the first entry with
// refcount 0 and not busy.
func (c *Cache) findVictimLocked() (int, bool) {
	for i := c.tail; i != -1; i = c.entries[i].prev {
		e := &c.entries[i]
		if e.refcount == 0 && !e.busy {
			return i, true
		}
	}
	return 0, false
}

// Data exposes the handle's backing block for the caller to read or
// mutate in place.
func (c *Cache) Data(h Handle) []byte {
	return c.entries[h.idx].data[:]
}

// SetBuff applies flags to h. Dirty is sticky; Writeback flushes a
// valid, dirty buffer and clears dirty before issuing I/O so a concurrent
// writer can redirty it; Invalidate clears identity and dirty;
// Release decrements the reference count and advances the cache event
// count when it reaches zero.
func (c *Cache) SetBuff(h Handle, flags SetFlags) status.Code {
	c.mu.Lock()
	e := &c.entries[h.idx]

	if flags&Dirty != 0 {
		e.dirty = true
	}

	var doWrite bool
	var vol ktypes.VolIndex
	var block ktypes.BlockNum
	var data [BlockSize]byte
	if flags&Writeback != 0 && e.valid && e.dirty {
		e.dirty = false
		doWrite = true
		vol, block = e.vol, e.block
		data = e.data
	}

	if flags&Invalidate != 0 {
		e.valid = false
		e.dirty = false
		e.block = ktypes.BlockInvalid
	}

	if flags&Release != 0 {
		if e.refcount > 0 {
			e.refcount--
		}
	}
	releasedToZero := flags&Release != 0 && e.refcount == 0
	c.mu.Unlock()

	var wstat status.Code
	if doWrite {
		wstat = c.dev.WriteBlock(vol, block, data[:])
		if !wstat.OK() {
			c.markTrouble(vol)
		}
	}
	if releasedToZero {
		c.ec.Advance()
	}
	return status.OK
}

// Invalidate force-clears every entry matching (vol, block). Busy
// entries are cleared too: any in-flight I/O result is discarded on
// completion. Every call also clears vol's trouble bit.
func (c *Cache) Invalidate(block ktypes.BlockNum, vol ktypes.VolIndex) {
	c.mu.Lock()
	for i := range c.entries {
		e := &c.entries[i]
		if e.vol == vol && e.block == block {
			e.valid = false
			e.dirty = false
			e.block = ktypes.BlockInvalid
		}
	}
	c.mu.Unlock()
	c.clearTrouble(vol)
}

// UpdateVol opportunistically writes back every dirty, idle,
// non-busy entry belonging to vol.
func (c *Cache) UpdateVol(vol ktypes.VolIndex) {
	c.mu.Lock()
	type wb struct {
		idx   int
		block ktypes.BlockNum
		data  [BlockSize]byte
	}
	var pending []wb
	for i := range c.entries {
		e := &c.entries[i]
		if e.vol == vol && e.valid && e.dirty && !e.busy && e.refcount == 0 {
			pending = append(pending, wb{i, e.block, e.data})
			e.busy = true
		}
	}
	c.mu.Unlock()

	for _, w := range pending {
		wstat := c.dev.WriteBlock(vol, w.block, w.data[:])
		if !wstat.OK() {
			c.markTrouble(vol)
		}
		c.mu.Lock()
		c.entries[w.idx].dirty = false
		c.entries[w.idx].busy = false
		c.mu.Unlock()
	}
	if len(pending) > 0 {
		c.ec.Advance()
	}
}

func (c *Cache) markTrouble(vol ktypes.VolIndex) {
	c.troubleMu.Lock()
	c.trouble[vol] = true
	c.troubleMu.Unlock()
}

func (c *Cache) clearTrouble(vol ktypes.VolIndex) {
	c.troubleMu.Lock()
	delete(c.trouble, vol)
	c.troubleMu.Unlock()
}

// Trouble reports whether vol has an unresolved write failure. The
// bit is only ever set and read here; what a caller does in response
// is outside this package's concern.
func (c *Cache) Trouble(vol ktypes.VolIndex) bool {
	c.troubleMu.Lock()
	defer c.troubleMu.Unlock()
	return c.trouble[vol]
}

// Size returns the number of entries in the pool, for tests that need
// to fill it deterministically.
func (c *Cache) Size() int { return len(c.entries) }
