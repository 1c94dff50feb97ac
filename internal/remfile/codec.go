package remfile

import (
	"encoding/binary"

	"github.com/aegisos/kernel/internal/ktypes"
)

// The wire bodies below are deliberately simple fixed-layout encodings
// for the fields each opcode needs; none of them need to match an
// external format, only to round-trip between this client and server.

func encodeUID(u ktypes.UID) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint32(b, u.High)
	binary.LittleEndian.PutUint32(b[4:], u.Low)
	return b
}

func decodeUID(b []byte) ktypes.UID {
	if len(b) < 8 {
		return ktypes.UID{}
	}
	return ktypes.UID{High: binary.LittleEndian.Uint32(b), Low: binary.LittleEndian.Uint32(b[4:])}
}

func decodeUIDLen(b []byte) (ktypes.UID, uint64) {
	u := decodeUID(b)
	if len(b) < 16 {
		return u, 0
	}
	return u, binary.LittleEndian.Uint64(b[8:])
}

func decodeUIDModeSID(b []byte) (ktypes.UID, uint32, SIDSet) {
	u := decodeUID(b)
	var mode uint32
	var as SIDSet
	if len(b) >= 12 {
		mode = binary.LittleEndian.Uint32(b[8:])
	}
	if len(b) >= 16 {
		as.Project = binary.LittleEndian.Uint32(b[12:])
	}
	return u, mode, as
}

func decodeGetEntry(b []byte) (dir ktypes.UID, name string, as SIDSet, wireCompat bool) {
	dir = decodeUID(b)
	if len(b) < 9 {
		return dir, "", as, true
	}
	wireCompat = b[8] != 0
	name = string(b[9:])
	return
}

func decodeLink(b []byte) (dir ktypes.UID, name string, target ktypes.UID, asLocksmith bool) {
	dir = decodeUID(b)
	if len(b) < 17 {
		return dir, "", ktypes.UID{}, false
	}
	target = decodeUID(b[8:])
	asLocksmith = b[16] != 0
	name = string(b[17:])
	return
}

func decodeCreateTyped(b []byte) (dir ktypes.UID, name string, typ uint32) {
	dir = decodeUID(b)
	if len(b) < 12 {
		return dir, "", 0
	}
	typ = binary.LittleEndian.Uint32(b[8:])
	name = string(b[12:])
	return
}
