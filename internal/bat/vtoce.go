package bat

import "encoding/binary"

// VTOCE block layout offsets. The entry area itself (up to three
// metadata entries) is opaque to BAT; callers interpret entry bytes.
const (
	offNextVtoce  = 0x000
	offEntryCount = 0x004
	offEntryData  = 0x006
	entryDataSize = 0x3F2
	offMagic      = 0x3F8
	offSelfBlock  = 0x3FC

	// VtoceMagic marks a valid VTOCE block.
	VtoceMagic = 0xFEDCA984

	// MaxEntriesPerVtoce is the number of metadata entries a single
	// VTOCE block can hold before its partition's chain advances.
	MaxEntriesPerVtoce = 3

	VtoceBlockSize = 1024
)

// Vtoce is a decoded VTOCE metadata block.
type Vtoce struct {
	NextVtoce  uint32
	EntryCount uint16
	EntryData  [entryDataSize]byte
	Magic      uint32
	SelfBlock  uint32
}

// NewVtoce builds a freshly initialized VTOCE block stamped with its
// own block number.
func NewVtoce(selfBlock uint32) *Vtoce {
	return &Vtoce{Magic: VtoceMagic, SelfBlock: selfBlock}
}

func DecodeVtoce(b []byte) *Vtoce {
	le := binary.LittleEndian
	v := &Vtoce{
		NextVtoce:  le.Uint32(b[offNextVtoce:]),
		EntryCount: le.Uint16(b[offEntryCount:]),
		Magic:      le.Uint32(b[offMagic:]),
		SelfBlock:  le.Uint32(b[offSelfBlock:]),
	}
	copy(v.EntryData[:], b[offEntryData:offEntryData+entryDataSize])
	return v
}

func (v *Vtoce) Encode() []byte {
	b := make([]byte, VtoceBlockSize)
	le := binary.LittleEndian
	le.PutUint32(b[offNextVtoce:], v.NextVtoce)
	le.PutUint16(b[offEntryCount:], v.EntryCount)
	copy(b[offEntryData:], v.EntryData[:])
	le.PutUint32(b[offMagic:], v.Magic)
	le.PutUint32(b[offSelfBlock:], v.SelfBlock)
	return b
}

// Valid reports whether the magic stamp is present.
func (v *Vtoce) Valid() bool { return v.Magic == VtoceMagic }
