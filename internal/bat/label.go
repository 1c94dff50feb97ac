package bat

import "encoding/binary"

// Label mirrors the on-disk volume label at block 0. Field offsets
// are explicit and packed, not Go struct-natural, because the layout
// crosses the disk/host boundary.
const (
	offFormatVersion = 0x00
	offTotalBlocks   = 0x2C
	offFreeBlocks    = 0x30
	offBatStart      = 0x34
	offFirstData     = 0x38
	offFlags         = 0x3C
	offStepBlocks    = 0x3E
	offBatStep       = 0x40
	offReservedBlks  = 0x44
	offMountTimeHi   = 0xB0
	offMountNodeInfo = 0xB4
	offBootTime      = 0xB8
	offDismountTime  = 0xBC
	offSalvageFlag   = 0xCE
	offNumPartitions = 0xFC
	offPartStart     = 0xFE
	offPartSize      = 0x100
	offPartEntries   = 0x104

	partEntrySize = 8
	maxPartitions = 131

	// FlagSalvageNew is the salvage bit for the new label format.
	FlagSalvageNew = 1 << 12
)

// LabelBlockSize is the size of block 0, the volume label.
const LabelBlockSize = 1024

// Label is the decoded volume label.
type Label struct {
	FormatVersion uint16
	TotalBlocks   uint32
	FreeBlocks    uint32
	BatStart      uint32
	FirstData     uint32
	Flags         uint16
	StepBlocks    uint16
	BatStep       uint16
	Reserved      uint32
	MountTimeHi   uint32
	MountNodeInfo uint32
	BootTime      uint32
	DismountTime  uint32
	SalvageFlag   uint16
	NumPartitions uint16
	PartStart     uint16
	PartSize      uint32
	Partitions    []PartitionEntry
}

// PartitionEntry is one on-disk partition descriptor.
type PartitionEntry struct {
	FreeCount  uint32
	Status     uint8
	VtoceBlock uint32 // 24 bits significant
}

// PartStatus values.
const (
	PartFree    uint8 = 0
	PartActive  uint8 = 1
	PartVtoce   uint8 = 2 // has a partial VTOCE chain with space
)

// OldFormat reports whether this label predates the redesigned
// layout (format version 0).
func (l *Label) OldFormat() bool { return l.FormatVersion == 0 }

// SalvageNeeded reports the salvage bit for either label format: a
// dedicated flag bit in the new format, the sign bit of Flags in the
// old one.
func (l *Label) SalvageNeeded() bool {
	if l.OldFormat() {
		return l.Flags&0x8000 != 0
	}
	return l.Flags&FlagSalvageNew != 0
}

func (l *Label) setSalvage(on bool) {
	if l.OldFormat() {
		if on {
			l.Flags |= 0x8000
		} else {
			l.Flags &^= 0x8000
		}
		return
	}
	if on {
		l.Flags |= FlagSalvageNew
	} else {
		l.Flags &^= FlagSalvageNew
	}
}

// DecodeLabel parses a raw label block.
func DecodeLabel(b []byte) *Label {
	le := binary.LittleEndian
	l := &Label{
		FormatVersion: le.Uint16(b[offFormatVersion:]),
		TotalBlocks:   le.Uint32(b[offTotalBlocks:]),
		FreeBlocks:    le.Uint32(b[offFreeBlocks:]),
		BatStart:      le.Uint32(b[offBatStart:]),
		FirstData:     le.Uint32(b[offFirstData:]),
		Flags:         le.Uint16(b[offFlags:]),
		StepBlocks:    le.Uint16(b[offStepBlocks:]),
		BatStep:       le.Uint16(b[offBatStep:]),
		Reserved:      le.Uint32(b[offReservedBlks:]),
		MountTimeHi:   le.Uint32(b[offMountTimeHi:]),
		MountNodeInfo: le.Uint32(b[offMountNodeInfo:]),
		BootTime:      le.Uint32(b[offBootTime:]),
		DismountTime:  le.Uint32(b[offDismountTime:]),
		SalvageFlag:   le.Uint16(b[offSalvageFlag:]),
		NumPartitions: le.Uint16(b[offNumPartitions:]),
		PartStart:     le.Uint16(b[offPartStart:]),
		PartSize:      le.Uint32(b[offPartSize:]),
	}
	n := int(l.NumPartitions)
	if n > maxPartitions {
		n = maxPartitions
	}
	l.Partitions = make([]PartitionEntry, n)
	for i := 0; i < n; i++ {
		off := offPartEntries + i*partEntrySize
		raw := le.Uint32(b[off+4:])
		l.Partitions[i] = PartitionEntry{
			FreeCount:  le.Uint32(b[off:]),
			Status:     uint8(raw & 0xFF),
			VtoceBlock: raw >> 8,
		}
	}
	return l
}

// Encode serializes l back into a label block of size LabelBlockSize.
func (l *Label) Encode() []byte {
	b := make([]byte, LabelBlockSize)
	le := binary.LittleEndian
	le.PutUint16(b[offFormatVersion:], l.FormatVersion)
	le.PutUint32(b[offTotalBlocks:], l.TotalBlocks)
	le.PutUint32(b[offFreeBlocks:], l.FreeBlocks)
	le.PutUint32(b[offBatStart:], l.BatStart)
	le.PutUint32(b[offFirstData:], l.FirstData)
	le.PutUint16(b[offFlags:], l.Flags)
	le.PutUint16(b[offStepBlocks:], l.StepBlocks)
	le.PutUint16(b[offBatStep:], l.BatStep)
	le.PutUint32(b[offReservedBlks:], l.Reserved)
	le.PutUint32(b[offMountTimeHi:], l.MountTimeHi)
	le.PutUint32(b[offMountNodeInfo:], l.MountNodeInfo)
	le.PutUint32(b[offBootTime:], l.BootTime)
	le.PutUint32(b[offDismountTime:], l.DismountTime)
	le.PutUint16(b[offSalvageFlag:], l.SalvageFlag)
	le.PutUint16(b[offNumPartitions:], uint16(len(l.Partitions)))
	le.PutUint16(b[offPartStart:], l.PartStart)
	le.PutUint32(b[offPartSize:], l.PartSize)
	for i, p := range l.Partitions {
		off := offPartEntries + i*partEntrySize
		le.PutUint32(b[off:], p.FreeCount)
		le.PutUint32(b[off+4:], uint32(p.Status)|(p.VtoceBlock<<8))
	}
	return b
}
