package bat

import (
	"testing"

	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/stretchr/testify/require"
)

func TestFormatThenMountYieldsAllBlocksFree(t *testing.T) {
	dev := newMemDevice()
	dbf := dbuf.New(64*64, dev)

	st := Format(dbf, 1, FormatOptions{TotalBlocks: 500})
	require.True(t, st.OK())

	v, st := Mount(dbf, 1, MountOptions{SalvageOK: true, NodeID: 1})
	require.True(t, st.OK())

	require.EqualValues(t, v.TotalBlocks()-v.firstData, v.FreeBlocks())
	require.Equal(t, v.FreeBlocks(), v.SumPartitionFree())

	blocks, st := v.Allocate(0, 20, false)
	require.True(t, st.OK())
	require.Len(t, blocks, 20)
}

func TestFormatRejectsVolumeTooSmallForBitmapAndData(t *testing.T) {
	dev := newMemDevice()
	dbf := dbuf.New(64*64, dev)

	st := Format(dbf, 1, FormatOptions{TotalBlocks: 1})
	require.False(t, st.OK())
}
