package bat

import (
	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
)

// FormatOptions describes a brand-new volume's geometry. The bitmap
// region size and first data block are derived from totalBlocks; a
// single partition spans all data blocks.
type FormatOptions struct {
	TotalBlocks uint32
	StepBlocks  uint16
}

// Format writes a fresh label and an all-free BAT bitmap for vol,
// carving one partition over every block after the label and bitmap
// region. It is meant for bringing up a new volume file before the
// first Mount, not for the redesigned label's salvage/mount-stamp
// bookkeeping that Mount itself owns.
func Format(dbf *dbuf.Cache, vol ktypes.VolIndex, opt FormatOptions) status.Code {
	bitmapBlocks := (opt.TotalBlocks + bitsPerBlock - 1) / bitsPerBlock
	firstData := 1 + bitmapBlocks
	if firstData >= opt.TotalBlocks {
		return status.InvalidBlock
	}
	dataBlocks := opt.TotalBlocks - firstData

	for b := uint32(0); b < bitmapBlocks; b++ {
		h, st := dbf.GetBlock(vol, ktypes.BlockNum(1+b), ktypes.UID{}, 0, 0)
		if !st.OK() {
			return st
		}
		data := dbf.Data(h)
		for i := range data {
			data[i] = 0xFF // every bit free
		}
		if st := dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release); !st.OK() {
			return st
		}
	}

	label := &Label{
		FormatVersion: 1,
		TotalBlocks:   opt.TotalBlocks,
		FreeBlocks:    dataBlocks,
		BatStart:      1,
		FirstData:     firstData,
		StepBlocks:    opt.StepBlocks,
		NumPartitions: 1,
		PartSize:      dataBlocks,
		Partitions: []PartitionEntry{
			{FreeCount: dataBlocks, Status: PartActive},
		},
	}

	h, st := dbf.GetBlock(vol, 0, ktypes.UID{}, 0, 0)
	if !st.OK() {
		return st
	}
	copy(dbf.Data(h), label.Encode())
	return dbf.SetBuff(h, dbuf.Dirty|dbuf.Writeback|dbuf.Release)
}
