// Package ktypes defines the scalar identifiers shared across every
// kernel subsystem: object UIDs, block and page numbers, and small
// integer identifiers for nodes and address spaces.
package ktypes

// UID is a 64-bit globally unique object identifier. The low 20 bits
// of the Low half name the minting node; the remainder is a
// monotonically increasing counter local to that node.
type UID struct {
	High uint32
	Low  uint32
}

// Zero reports whether u is the nil UID, used as a sentinel meaning
// "no object" in caches and hint tables.
func (u UID) Zero() bool {
	return u.High == 0 && u.Low == 0
}

// NodeMask selects the node-id bits carried in the low half of a UID.
const NodeMask = 0xFFFFF

// NodeID returns the minting node encoded in u's low 20 bits.
func (u UID) NodeID() uint32 {
	return u.Low & NodeMask
}

// BlockNum is a volume-relative block index. BlockInvalid marks "no
// block" / sentinel position in buffer and allocator bookkeeping.
type BlockNum int32

const BlockInvalid BlockNum = -1

// PageNum is a 20-bit physical page identifier handed out by the page
// allocator that sits outside this module's scope.
type PageNum uint32

const PageInvalid PageNum = 0xFFFFF

// ASID names an address-space / process context.
type ASID uint32

// NodeNum identifies a node on the network.
type NodeNum uint32

// VolIndex is the small integer naming a mounted volume slot.
type VolIndex uint16
