package bat

import (
	"sync"
	"testing"

	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

// memDevice is a trivial in-memory backing store keyed by block
// number, good enough to drive dbuf.Cache in these tests.
type memDevice struct {
	mu     sync.Mutex
	blocks map[ktypes.BlockNum][]byte
}

func newMemDevice() *memDevice {
	return &memDevice{blocks: make(map[ktypes.BlockNum][]byte)}
}

func (m *memDevice) ReadBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b, ok := m.blocks[block]; ok {
		copy(buf, b)
	}
	return status.OK
}

func (m *memDevice) WriteBlock(vol ktypes.VolIndex, block ktypes.BlockNum, buf []byte) status.Code {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	m.blocks[block] = cp
	return status.OK
}

// buildVolume mounts a single-partition volume of totalBlocks blocks,
// with every bit in its BAT bitmap pre-set to free (1).
func buildVolume(t *testing.T, totalBlocks uint32) (*Volume, *dbuf.Cache, *memDevice) {
	t.Helper()
	dev := newMemDevice()
	dbf := dbuf.New(64*64, dev)

	label := &Label{
		FormatVersion: 1,
		TotalBlocks:   totalBlocks,
		FreeBlocks:    totalBlocks,
		BatStart:      1,
		FirstData:     10,
		PartStart:     0,
		PartSize:      totalBlocks,
		Partitions: []PartitionEntry{
			{FreeCount: totalBlocks, Status: PartActive},
		},
	}
	dev.blocks[0] = label.Encode()

	nBatBlocks := int(totalBlocks+bitsPerBlock-1) / bitsPerBlock
	allOnes := make([]byte, dbuf.BlockSize)
	for i := range allOnes {
		allOnes[i] = 0xFF
	}
	for i := 0; i < nBatBlocks; i++ {
		dev.blocks[ktypes.BlockNum(1+i)] = append([]byte(nil), allOnes...)
	}

	v, st := Mount(dbf, 1, MountOptions{SalvageOK: true, NodeID: 7})
	require.True(t, st.OK())
	return v, dbf, dev
}

func TestMountAllocFreeCycle(t *testing.T) {
	v, _, _ := buildVolume(t, 100)
	require.EqualValues(t, 100, v.FreeBlocks())

	blocks, st := v.Allocate(0, 10, false)
	require.True(t, st.OK())
	require.Len(t, blocks, 10)
	for i, b := range blocks {
		require.Equal(t, ktypes.BlockNum(v.firstData)+ktypes.BlockNum(i), b)
	}
	require.EqualValues(t, 90, v.FreeBlocks())
	require.EqualValues(t, 90, v.PartitionFreeCount(0))

	st = v.Free(blocks, false)
	require.True(t, st.OK())
	require.EqualValues(t, 100, v.FreeBlocks())
	require.EqualValues(t, 100, v.PartitionFreeCount(0))
	require.Equal(t, v.FreeBlocks(), v.SumPartitionFree())
}

func TestReserveCancelRoundTrips(t *testing.T) {
	v, _, _ := buildVolume(t, 50)
	require.True(t, v.Reserve(5).OK())
	require.EqualValues(t, 45, v.FreeBlocks())
	require.EqualValues(t, 5, v.ReservedBlocks())
	require.True(t, v.Cancel(5).OK())
	require.EqualValues(t, 50, v.FreeBlocks())
	require.EqualValues(t, 0, v.ReservedBlocks())
}

func TestVtoceChainAdvancesAfterThreeEntries(t *testing.T) {
	v, _, _ := buildVolume(t, 200)

	b1, isNew1, st := v.AllocVtoce(0)
	require.True(t, st.OK())
	require.True(t, isNew1)

	b2, isNew2, st := v.AllocVtoce(0)
	require.True(t, st.OK())
	require.False(t, isNew2)
	require.Equal(t, b1, b2)

	b3, isNew3, st := v.AllocVtoce(0)
	require.True(t, st.OK())
	require.False(t, isNew3)
	require.Equal(t, b1, b3)

	b4, isNew4, st := v.AllocVtoce(0)
	require.True(t, st.OK())
	require.True(t, isNew4, "fourth call must allocate a new block once the chain head advanced")
	require.NotEqual(t, b1, b4)
}
