// Package status implements the kernel-wide status code taxonomy: a
// tagged 32-bit code of the form (module<<16)|sub, together with the
// fatal-error path that every subsystem funnels unrecoverable damage
// through.
package status

import "fmt"

// Module identifies which subsystem raised a Code.
type Module uint16

const (
	ModuleEC Module = iota + 1
	ModuleDBUF
	ModuleBAT
	ModuleDISK
	ModuleSOCK
	ModuleMSG
	ModuleNETBUF
	ModuleHINT
	ModuleROUTE
	ModuleREMFILE
	ModuleTIME
	ModuleGLUE
)

// Code is a tagged 32-bit status. Zero is always success.
type Code uint32

func Make(m Module, sub uint16) Code {
	return Code(uint32(m)<<16 | uint32(sub))
}

func (c Code) Module() Module { return Module(c >> 16) }
func (c Code) Sub() uint16    { return uint16(c) }
func (c Code) OK() bool       { return c == 0 }

func (c Code) Error() string {
	if name, ok := names[c]; ok {
		return name
	}
	return fmt.Sprintf("status(%d,%d)", c.Module(), c.Sub())
}

// Local recoverable statuses, returned directly to the caller.
var (
	OK                 = Code(0)
	DiskFull           = Make(ModuleBAT, 1)
	VolumeNotMounted   = Make(ModuleDISK, 1)
	VolumeInUse        = Make(ModuleDISK, 2)
	VolumeTableFull    = Make(ModuleDISK, 3)
	InvalidBlock       = Make(ModuleBAT, 2)
	BitAlreadyFree     = Make(ModuleBAT, 3)
	NoVtoceSpace       = Make(ModuleBAT, 4)
	WrongOwner         = Make(ModuleDISK, 4)
	BadMountState      = Make(ModuleDISK, 5)
)

// Remote statuses, surfaced to the caller of the remote-file client.
var (
	RemoteNodeFailedToRespond = Make(ModuleREMFILE, 1)
	UnexpectedReplyType       = Make(ModuleREMFILE, 2)
	UnknownNetworkPort        = Make(ModuleROUTE, 1)
	QuitSignalled             = Make(ModuleGLUE, 1)
	Timeout                   = Make(ModuleGLUE, 2)
)

// I/O transient statuses. These may be swallowed when the caller's
// flags permit (dismount always swallows them).
var (
	DiskWriteProtected  = Make(ModuleDISK, 6)
	StorageModuleStopped = Make(ModuleDISK, 7)
)

// Storage damage / stale statuses.
var (
	NeedsSalvaging = Make(ModuleBAT, 5)
	FileNotFound   = Make(ModuleREMFILE, 3)
	NameNotFound   = Make(ModuleREMFILE, 4)
)

// Fatal statuses, the ones passed to Crash, which does not return.
// filedisk also returns DriverLogicErr as an ordinary status when a
// backing file cannot be opened or sized.
var (
	BadDeferredInterrupt = Make(ModuleGLUE, 100)
	ControllerError      = Make(ModuleDISK, 100)
	DriverLogicErr       = Make(ModuleDISK, 101)
)

var names = map[Code]string{
	OK:                        "ok",
	DiskFull:                  "disk_full",
	VolumeNotMounted:          "volume_not_mounted",
	VolumeInUse:               "volume_in_use",
	VolumeTableFull:           "volume_table_full",
	InvalidBlock:              "invalid_block",
	BitAlreadyFree:            "bit_already_free",
	NoVtoceSpace:              "no_vtoce_space",
	WrongOwner:                "wrong_owner",
	BadMountState:             "bad_mount_state",
	RemoteNodeFailedToRespond: "remote_node_failed_to_respond",
	UnexpectedReplyType:       "unexpected_reply_type",
	UnknownNetworkPort:        "unknown_network_port",
	QuitSignalled:             "quit_signalled",
	Timeout:                   "timeout",
	DiskWriteProtected:        "disk_write_protected",
	StorageModuleStopped:      "storage_module_stopped",
	NeedsSalvaging:            "needs_salvaging",
	FileNotFound:              "file_not_found",
	NameNotFound:              "name_not_found",
	BadDeferredInterrupt:      "bad_deferred_interrupt",
	ControllerError:           "controller_error",
	DriverLogicErr:            "driver_logic_err",
}

// Transient reports whether c is an I/O status that dismount and
// permissive callers are allowed to swallow.
func Transient(c Code) bool {
	return c == DiskWriteProtected || c == StorageModuleStopped
}

// Fatal reports whether c belongs to the small set of statuses that
// can never be handled locally.
func Fatal(c Code) bool {
	switch c {
	case BadDeferredInterrupt, ControllerError, DriverLogicErr:
		return true
	default:
		return false
	}
}

// Crasher is invoked by Crash; tests substitute a recording stub so
// the fatal path is exercised without killing the process.
type Crasher func(c Code)

var crasher Crasher = func(c Code) {
	panic(fmt.Sprintf("kernel: fatal status %v", c))
}

// SetCrasher overrides the crash handler, for tests.
func SetCrasher(c Crasher) { crasher = c }

// Crash reports a fatal status through the installed Crasher. Callers
// must treat Crash as non-returning.
func Crash(c Code) {
	crasher(c)
}
