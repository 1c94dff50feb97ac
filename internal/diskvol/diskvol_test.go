package diskvol

import (
	"testing"

	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
	"github.com/stretchr/testify/require"
)

type memDriver struct {
	blocks map[ktypes.BlockNum][]byte
}

func newMemDriver() *memDriver { return &memDriver{blocks: make(map[ktypes.BlockNum][]byte)} }

func (d *memDriver) Init(unit int) status.Code { return status.OK }

func (d *memDriver) DoIO(unit int, block ktypes.BlockNum, buf []byte, write bool) status.Code {
	if write {
		cp := append([]byte(nil), buf...)
		d.blocks[block] = cp
		return status.OK
	}
	if b, ok := d.blocks[block]; ok {
		copy(buf, b)
	}
	return status.OK
}

func (d *memDriver) Revalidate(unit int) status.Code  { return status.OK }
func (d *memDriver) ErrorQueue(unit int) []status.Code { return nil }

func TestMountStateMachine(t *testing.T) {
	m := New()
	drv := newMemDriver()

	pv, st := m.PVAssign(1, drv, 0)
	require.True(t, st.OK())
	require.Equal(t, StateReserved, m.State(pv))

	require.True(t, m.PVMount(pv, 1).OK())
	require.Equal(t, StateAssigned, m.State(pv))

	lv, st := m.LVAssign(pv, 100, 1)
	require.True(t, st.OK())
	require.True(t, m.LVMount(lv, 1).OK())
	require.Equal(t, StateBusy, m.State(lv))

	buf := make([]byte, 16)
	for i := range buf {
		buf[i] = 0x42
	}
	require.True(t, m.WriteBlock(lv, 3, buf).OK())

	readBack := make([]byte, 16)
	require.True(t, m.ReadBlock(lv, 3, readBack).OK())
	require.Equal(t, buf, readBack)
	require.Equal(t, buf, drv.blocks[103]) // LV start offset applied

	require.True(t, m.Dismount(lv, 1, nil).OK())
	require.Equal(t, StateFree, m.State(lv))
}

func TestWrongOwnerRejected(t *testing.T) {
	m := New()
	pv, _ := m.PVAssign(1, newMemDriver(), 0)
	require.Equal(t, status.WrongOwner, m.PVMount(pv, 2))
}
