// Package filedisk is a file-backed block device driver: it
// implements diskvol.Driver over a plain os.File, standing in for the
// hardware-specific driver vtable the storage core dispatches to.
package filedisk

import (
	"fmt"
	"os"
	"sync"

	"github.com/aegisos/kernel/internal/dbuf"
	"github.com/aegisos/kernel/internal/ktypes"
	"github.com/aegisos/kernel/internal/status"
)

// Config is the subset of per-volume settings a file-backed unit
// needs; real controllers would instead carry geometry and firmware
// revision here.
type Config struct {
	Path       string
	Create     bool
	SizeBlocks int64
}

// Driver implements diskvol.Driver against one or more files, indexed
// by unit number.
type Driver struct {
	mu    sync.Mutex
	units map[int]*unit
	cfg   map[int]Config
}

type unit struct {
	f      *os.File
	errorQ []status.Code
}

// New builds a driver that will open each unit's file lazily on
// Init, per the cfg given for that unit.
func New(cfg map[int]Config) *Driver {
	return &Driver{units: make(map[int]*unit), cfg: cfg}
}

// Init opens unit's backing file, creating and zero-extending it if
// the config asks for that and it does not already exist.
func (d *Driver) Init(unitNum int) status.Code {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.units[unitNum]; ok {
		return status.OK
	}
	cfg, ok := d.cfg[unitNum]
	if !ok {
		return status.VolumeNotMounted
	}

	flags := os.O_RDWR
	if cfg.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(cfg.Path, flags, 0o640)
	if err != nil {
		return status.DriverLogicErr
	}

	if cfg.Create {
		if st, statErr := f.Stat(); statErr == nil && st.Size() < cfg.SizeBlocks*dbuf.BlockSize {
			if err := f.Truncate(cfg.SizeBlocks * dbuf.BlockSize); err != nil {
				f.Close()
				return status.DriverLogicErr
			}
		}
	}

	d.units[unitNum] = &unit{f: f}
	return status.OK
}

// DoIO reads or writes one dbuf.BlockSize block at the given block
// offset. A short read past end-of-file is treated as a zero block
// rather than an error, matching a freshly grown volume's unwritten
// tail.
func (d *Driver) DoIO(unitNum int, block ktypes.BlockNum, buf []byte, write bool) status.Code {
	d.mu.Lock()
	u, ok := d.units[unitNum]
	d.mu.Unlock()
	if !ok {
		return status.VolumeNotMounted
	}
	if block < 0 {
		return status.InvalidBlock
	}

	off := int64(block) * dbuf.BlockSize
	if write {
		if _, err := u.f.WriteAt(buf[:dbuf.BlockSize], off); err != nil {
			d.recordError(u, status.DiskWriteProtected)
			return status.DiskWriteProtected
		}
		return status.OK
	}

	n, err := u.f.ReadAt(buf[:dbuf.BlockSize], off)
	if err != nil && n == 0 {
		for i := range buf[:dbuf.BlockSize] {
			buf[i] = 0
		}
		return status.OK
	}
	for i := n; i < dbuf.BlockSize; i++ {
		buf[i] = 0
	}
	return status.OK
}

// Revalidate is a no-op for a regular file: there is no removable
// medium to reinsert.
func (d *Driver) Revalidate(unitNum int) status.Code {
	d.mu.Lock()
	_, ok := d.units[unitNum]
	d.mu.Unlock()
	if !ok {
		return status.VolumeNotMounted
	}
	return status.OK
}

// ErrorQueue drains and returns the errors DoIO has recorded for
// unitNum since the last call.
func (d *Driver) ErrorQueue(unitNum int) []status.Code {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.units[unitNum]
	if !ok {
		return nil
	}
	q := u.errorQ
	u.errorQ = nil
	return q
}

func (d *Driver) recordError(u *unit, st status.Code) {
	d.mu.Lock()
	u.errorQ = append(u.errorQ, st)
	d.mu.Unlock()
}

// Close releases every open unit's backing file.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var firstErr error
	for n, u := range d.units {
		if err := u.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close unit %d: %w", n, err)
		}
	}
	return firstErr
}
