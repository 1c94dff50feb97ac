// Package bat implements the block allocation table: the on-volume
// bitmap allocator, its partition metadata, and VTOCE chain
// management. All operations on a given volume are serialized by a
// single sleeping lock. AllocVtoce drops it across its VTOCE block
// reads and writes; Allocate and Free hold it across their bitmap
// reads and writes through DBUF.
package bat

import (
	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/ec"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
)

const bitsPerBlock = dbuf.BlockSize * 8 // 8192 bits/block
const wordsPerBlock = dbuf.BlockSize / 4

// OldFormatReserve is the unexplained 11-block reserve overhead the
// original carries for old-format volumes. Preserved as a named
// constant rather than re-derived from geometry.
const OldFormatReserve = 11

// partitionRuntime tracks the in-memory mirror of a partition entry
// plus the allocation cursor used for hint-biased search.
type partitionRuntime struct {
	start     uint32 // first absolute block number in this partition
	size      uint32
	freeCount uint32
	status    uint8
	vtoceHead uint32
}

// Volume is the in-memory state for a mounted volume's BAT.
type Volume struct {
	lock ec.ExclLock

	idx ktypes.VolIndex
	dbf *dbuf.Cache

	label *Label

	total    uint32
	free     uint32
	reserved uint32

	batStart     uint32
	firstData    uint32
	stepBlocks   uint32
	allocChunk   uint32
	chunkOffset  uint32
	oldFormat    bool
	salvaged     bool

	partitions []partitionRuntime
}

// Salvaged reports whether Mount found the volume's salvage bit set
// and proceeded anyway because the caller opted in, rather than
// mounting a cleanly dismounted volume.
func (v *Volume) Salvaged() bool { return v.salvaged }

// MountOptions controls Mount's handling of a dirty salvage bit.
type MountOptions struct {
	SalvageOK    bool
	NodeID       uint32
	BootTime     uint32
	MountTime    uint32
	ReadOnly     bool
	SpecialDisk  bool // "special" disk type multiplies the chunk size by SectorsTrack
	SectorsTrack uint32
}

// Mount reads block 0 of vol, validates the salvage bit, stamps mount
// metadata, and returns the runtime Volume. If the volume needs
// salvaging and the caller did not opt in, it returns NeedsSalvaging
// without mutating the label.
func Mount(dbf *dbuf.Cache, vol ktypes.VolIndex, opt MountOptions) (*Volume, status.Code) {
	h, st := dbf.GetBlock(vol, 0, ktypes.UID{}, 0, 0)
	if !st.OK() {
		return nil, st
	}
	label := DecodeLabel(dbf.Data(h))
	needsSalvage := label.SalvageNeeded()

	if needsSalvage && !opt.SalvageOK {
		dbf.SetBuff(h, dbuf.Release)
		return nil, status.NeedsSalvaging
	}

	// Set the salvage flag before clearing it: a crash mid-mount
	// leaves the volume still marked, never silently clean.
	label.setSalvage(true)
	writeLabel(dbf, h, label)
	label.setSalvage(false)

	chunkSize := opt.SectorsTrack
	if chunkSize == 0 {
		chunkSize = 1
	}
	if opt.SpecialDisk {
		chunkSize *= opt.SectorsTrack
	}
	chunkOffset := (chunkSize - (label.FirstData+0)%chunkSize) % chunkSize

	label.MountTimeHi = opt.MountTime
	label.MountNodeInfo = (label.MountNodeInfo &^ 0xFFFFF) | (opt.NodeID & 0xFFFFF)
	label.BootTime = opt.BootTime

	wstat := writeLabel(dbf, h, label)
	if !opt.ReadOnly && wstat != status.OK && !status.Transient(wstat) {
		dbf.SetBuff(h, dbuf.Release)
		return nil, wstat
	}
	dbf.SetBuff(h, dbuf.Release)

	v := &Volume{
		idx:         vol,
		dbf:         dbf,
		label:       label,
		total:       label.TotalBlocks,
		free:        label.FreeBlocks,
		reserved:    label.Reserved,
		batStart:    label.BatStart,
		firstData:   label.FirstData,
		stepBlocks:  uint32(label.StepBlocks),
		allocChunk:  chunkSize,
		chunkOffset: chunkOffset,
		oldFormat:   label.OldFormat(),
		salvaged:    needsSalvage,
	}

	partSize := label.PartSize
	if partSize == 0 {
		partSize = label.TotalBlocks
	}
	v.partitions = make([]partitionRuntime, len(label.Partitions))
	for i, p := range label.Partitions {
		v.partitions[i] = partitionRuntime{
			start:     label.FirstData + uint32(i)*partSize,
			size:      partSize,
			freeCount: p.FreeCount,
			status:    p.Status,
			vtoceHead: p.VtoceBlock,
		}
	}
	return v, status.OK
}

func writeLabel(dbf *dbuf.Cache, h dbuf.Handle, label *Label) status.Code {
	copy(dbf.Data(h), label.Encode())
	return dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback)
}

// blockToBatPos maps an absolute block number to its bitmap block and
// bit offset within that block.
func (v *Volume) blockToBatPos(block uint32) (blk ktypes.BlockNum, word, bit int) {
	rel := block
	blk = ktypes.BlockNum(v.batStart + rel/bitsPerBlock)
	within := rel % bitsPerBlock
	word = int(within / 32)
	bit = int(within % 32)
	return
}

func (v *Volume) partitionFor(block uint32) int {
	for i := range v.partitions {
		p := &v.partitions[i]
		if block >= p.start && block < p.start+p.size {
			return i
		}
	}
	return -1
}

// Allocate draws count free blocks starting its search near hint,
// honoring the per-partition stride counter for light fragmentation
// resistance. use_reserved permits dipping into the reserved pool.
func (v *Volume) Allocate(hint uint32, count int, useReserved bool) ([]ktypes.BlockNum, status.Code) {
	v.lock.Lock()
	defer v.lock.Unlock()

	avail := v.free
	if useReserved {
		avail += v.reserved
	}
	if uint32(count) > avail {
		return nil, status.DiskFull
	}

	partIdx := v.partitionFor(hint)
	if partIdx < 0 {
		partIdx = 0
	}

	out := make([]ktypes.BlockNum, 0, count)
	curHint := hint

	for len(out) < count {
		p := v.findPartitionWithSpace(partIdx, useReserved)
		if p < 0 {
			return nil, status.DiskFull
		}
		partIdx = p
		stride := 0
		got := v.scanChunked(partIdx, curHint, count-len(out), &stride, &out)
		curHint = 0
		if got == 0 {
			// Partition genuinely exhausted despite free_count > 0:
			// move on rather than spin.
			v.partitions[partIdx].freeCount = 0
		}
	}

	if uint32(count) <= v.free {
		v.free -= uint32(count)
	} else {
		rem := uint32(count) - v.free
		v.free = 0
		v.reserved -= rem
	}
	return out, status.OK
}

func (v *Volume) findPartitionWithSpace(from int, useReserved bool) int {
	n := len(v.partitions)
	if n == 0 {
		return -1
	}
	for i := 0; i < n; i++ {
		idx := (from + i) % n
		if v.partitions[idx].freeCount > 0 {
			return idx
		}
	}
	return -1
}

// scanChunked performs the two-phase allocation-chunk walk required of
// BAT.Allocate: the partition is carved into alloc_chunk_size-block
// chunks (offset by chunkOffset so chunk boundaries line up with the
// volume's track geometry), and the chunk containing hint is searched
// first; only once that chunk is exhausted does the scan wrap around
// to the rest of the partition. This gives newly allocated blocks for
// a single request a chance to land on the same track before spilling
// into the rest of the partition.
func (v *Volume) scanChunked(partIdx int, hint uint32, need int, stride *int, out *[]ktypes.BlockNum) int {
	part := &v.partitions[partIdx]

	chunkSize := v.allocChunk
	if chunkSize == 0 || chunkSize > part.size {
		chunkSize = part.size
	}

	relHint := uint32(0)
	if hint > part.start {
		relHint = hint - part.start
	}
	if relHint >= part.size {
		relHint = 0
	}

	var chunkStart uint32
	if relHint < v.chunkOffset {
		chunkStart = 0
	} else {
		chunkStart = v.chunkOffset + ((relHint-v.chunkOffset)/chunkSize)*chunkSize
	}
	chunkEnd := chunkStart + chunkSize
	if chunkEnd > part.size {
		chunkEnd = part.size
	}

	claimed := v.scanRange(partIdx, chunkStart, chunkEnd, relHint, need, stride, out)
	if claimed >= need {
		return claimed
	}
	claimed += v.scanRange(partIdx, 0, chunkStart, 0, need-claimed, stride, out)
	if claimed >= need {
		return claimed
	}
	claimed += v.scanRange(partIdx, chunkEnd, part.size, chunkEnd, need-claimed, stride, out)
	return claimed
}

// scanRange walks the bitmap bits belonging to partition p within the
// partition-relative block range [loBlk, hiBlk), starting at startBlk,
// claiming bits after the stride counter lapses, appending to out.
// Returns the number of blocks claimed in this call.
func (v *Volume) scanRange(p int, loBlk, hiBlk, startBlk uint32, need int, stride *int, out *[]ktypes.BlockNum) int {
	part := &v.partitions[p]
	if hiBlk > part.size {
		hiBlk = part.size
	}
	if startBlk < loBlk {
		startBlk = loBlk
	}

	claimed := 0
	rel := startBlk
	for rel < hiBlk && claimed < need {
		// Bitmap bits are indexed by absolute block number, the same
		// mapping Free uses.
		batBlk, wordIdx, bit0 := v.blockToBatPos(part.start + rel)
		h, st := v.dbf.GetBlock(v.idx, batBlk, ktypes.UID{}, 0, 0)
		if !st.OK() {
			return claimed
		}
		data := v.dbf.Data(h)
		wordOff := (wordIdx % wordsPerBlock) * 4
		word := le32(data[wordOff:])
		if word == 0 {
			v.dbf.SetBuff(h, dbuf.Release)
			rel += uint32(32 - bit0)
			continue
		}
		dirty := false
		for b := bit0; b < 32 && claimed < need; b++ {
			blkRel := rel + uint32(b-bit0)
			if blkRel >= hiBlk {
				break
			}
			if word&(1<<uint(b)) == 0 {
				continue
			}
			if *stride > 0 {
				*stride--
				continue
			}
			word &^= 1 << uint(b)
			dirty = true
			*stride = int(v.stepBlocks)
			*out = append(*out, ktypes.BlockNum(part.start+blkRel))
			claimed++
			part.freeCount--
		}
		if dirty {
			putLe32(data[wordOff:], word)
			v.dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release)
		} else {
			v.dbf.SetBuff(h, dbuf.Release)
		}
		rel += uint32(32 - bit0)
	}
	return claimed
}

// Free returns blocks to the bitmap. Each bit must currently be
// clear; setting an already-free bit is a caller bug and returns
// BitAlreadyFree without mutating further blocks in the batch.
func (v *Volume) Free(blocks []ktypes.BlockNum, reserved bool) status.Code {
	v.lock.Lock()
	defer v.lock.Unlock()

	for _, blk := range blocks {
		if blk == 0 {
			if !reserved {
				v.reserved--
				v.free++
			}
			continue
		}
		batBlk, wordIdx, bit := v.blockToBatPos(uint32(blk))
		h, st := v.dbf.GetBlock(v.idx, batBlk, ktypes.UID{}, 0, 0)
		if !st.OK() {
			return st
		}
		data := v.dbf.Data(h)
		wordOff := (wordIdx % wordsPerBlock) * 4
		word := le32(data[wordOff:])
		mask := uint32(1) << uint(bit)
		if word&mask != 0 {
			v.dbf.SetBuff(h, dbuf.Release)
			return status.BitAlreadyFree
		}
		word |= mask
		putLe32(data[wordOff:], word)
		v.dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release)

		if p := v.partitionFor(uint32(blk)); p >= 0 {
			v.partitions[p].freeCount++
		}
		if reserved {
			v.reserved++
		} else {
			v.free++
		}
	}
	return status.OK
}

// AllocVtoce returns a block to hold a new VTOCE entry, preferring a
// partition that already has chain room. isNew reports whether a
// fresh block was allocated (vs. reusing the partition's current
// head).
func (v *Volume) AllocVtoce(hint uint32) (ktypes.BlockNum, bool, status.Code) {
	v.lock.Lock()
	part := v.selectVtocePartitionLocked(hint)
	if part < 0 {
		v.lock.Unlock()
		return 0, false, status.NoVtoceSpace
	}
	p := &v.partitions[part]

	if p.vtoceHead != 0 {
		head := p.vtoceHead
		v.lock.Unlock()

		h, st := v.dbf.GetBlock(v.idx, ktypes.BlockNum(head), ktypes.UID{}, 0, 0)
		if !st.OK() {
			return 0, false, st
		}
		vt := DecodeVtoce(v.dbf.Data(h))
		vt.EntryCount++
		advance := vt.EntryCount >= MaxEntriesPerVtoce
		next := vt.NextVtoce
		copy(v.dbf.Data(h), vt.Encode())
		v.dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release)

		v.lock.Lock()
		p.status = PartVtoce
		if advance {
			p.vtoceHead = next
		}
		v.lock.Unlock()
		return ktypes.BlockNum(head), false, status.OK
	}
	v.lock.Unlock()

	blocks, st := v.Allocate(p.start, 1, false)
	if !st.OK() {
		return 0, false, st
	}
	newBlock := blocks[0]

	vt := NewVtoce(uint32(newBlock))
	vt.EntryCount = 1
	h, st := v.dbf.GetBlock(v.idx, newBlock, ktypes.UID{}, 0, 0)
	if !st.OK() {
		return 0, false, st
	}
	copy(v.dbf.Data(h), vt.Encode())
	v.dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release)

	v.lock.Lock()
	p.status = PartVtoce
	p.vtoceHead = uint32(newBlock)
	v.lock.Unlock()
	return newBlock, true, status.OK
}

// selectVtocePartitionLocked prefers a type-2 partition with free
// space above 1/8th of its size, else the partition with the most
// free blocks, scanning alternately around the middle.
func (v *Volume) selectVtocePartitionLocked(hint uint32) int {
	n := len(v.partitions)
	if n == 0 {
		return -1
	}
	for i, p := range v.partitions {
		if p.status == PartVtoce && p.freeCount > p.size/8 {
			return i
		}
	}
	mid := n / 2
	best := -1
	for off := 0; off < n; off++ {
		for _, idx := range []int{mid + off, mid - off} {
			if idx < 0 || idx >= n {
				continue
			}
			if best < 0 || v.partitions[idx].freeCount > v.partitions[best].freeCount {
				best = idx
			}
		}
	}
	return best
}

// Reserve moves n blocks from free to reserved, enforcing the
// old-format reserve buffer.
func (v *Volume) Reserve(n uint32) status.Code {
	v.lock.Lock()
	defer v.lock.Unlock()
	floor := uint32(0)
	if v.oldFormat {
		floor = OldFormatReserve
	}
	if v.free < n+floor {
		return status.DiskFull
	}
	v.free -= n
	v.reserved += n
	return status.OK
}

// Cancel is the inverse of Reserve.
func (v *Volume) Cancel(n uint32) status.Code {
	v.lock.Lock()
	defer v.lock.Unlock()
	if v.reserved < n {
		return status.InvalidBlock
	}
	v.reserved -= n
	v.free += n
	return status.OK
}

// FreeBlocks, ReservedBlocks, TotalBlocks, and PartitionFreeCount
// expose counters for the sum(partition.free_count) == volume.free
// invariant checked in tests and for administrative reporting.
func (v *Volume) FreeBlocks() uint32     { v.lock.Lock(); defer v.lock.Unlock(); return v.free }
func (v *Volume) ReservedBlocks() uint32 { v.lock.Lock(); defer v.lock.Unlock(); return v.reserved }
func (v *Volume) TotalBlocks() uint32    { return v.total }

func (v *Volume) PartitionFreeCount(i int) uint32 {
	v.lock.Lock()
	defer v.lock.Unlock()
	return v.partitions[i].freeCount
}

func (v *Volume) SumPartitionFree() uint32 {
	v.lock.Lock()
	defer v.lock.Unlock()
	var sum uint32
	for _, p := range v.partitions {
		sum += p.freeCount
	}
	return sum
}

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLe32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
