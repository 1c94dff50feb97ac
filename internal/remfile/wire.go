// Package remfile implements the remote-file RPC layer: a client that
// marshals requests over the message layer with retry and timeout
// handling, and a single-threaded server dispatcher for the family of
// file, lock, and directory opcodes that make another node's files
// appear local.
package remfile

import (
	"encoding/binary"

	"github.com/aegisos/kernel/internal/status"
)

// Opcode identifies a remote-file operation. The families below
// mirror the server's dispatch groups.
type Opcode uint16

const (
	// Liveness
	OpTest Opcode = iota + 1
	OpNodeCrash

	// File attributes
	OpSetAttribute
	OpSetProt
	OpSetAttrib

	// Locking
	OpLock
	OpLockExtended
	OpUnlock
	OpLocalReadLock
	OpLocalLockVerify

	// Directory
	OpGetEntry
	OpAddLink
	OpDropLink

	// Lifecycle
	OpTruncateDelete
	OpCreateTyped
	OpGenerateUID
	OpPurify

	// Area management
	OpCreateArea
	OpDeleteArea
	OpGrowArea
)

// RespMagic is the first byte of every server response.
const RespMagic = 0x80

// StaleEntrySentinel is written in place of a response's opcode+1 tag
// when the server wants the client to treat the reply as a hint to
// invalidate whatever it has cached locally for this name.
const StaleEntrySentinel = 0xFFFF

// Request is a decoded client request: the opcode plus an
// opcode-specific body.
type Request struct {
	Opcode Opcode
	Body   []byte
}

func (r Request) Encode() []byte {
	out := make([]byte, 2+len(r.Body))
	binary.LittleEndian.PutUint16(out, uint16(r.Opcode))
	copy(out[2:], r.Body)
	return out
}

func DecodeRequest(b []byte) (Request, bool) {
	if len(b) < 2 {
		return Request{}, false
	}
	return Request{
		Opcode: Opcode(binary.LittleEndian.Uint16(b)),
		Body:   append([]byte(nil), b[2:]...),
	}, true
}

// Response is the server's reply: a magic byte, the echoed
// opcode+1 (or StaleEntrySentinel), a status code, and up to 0x100
// bytes of opcode-specific reply payload.
type Response struct {
	Magic     byte
	OpcodePlus uint16
	Status    status.Code
	Reply     []byte
}

const MaxReplyPayload = 0x100

func (r Response) Encode() []byte {
	n := len(r.Reply)
	if n > MaxReplyPayload {
		n = MaxReplyPayload
	}
	out := make([]byte, 1+2+4+n)
	out[0] = r.Magic
	binary.LittleEndian.PutUint16(out[1:], r.OpcodePlus)
	binary.LittleEndian.PutUint32(out[3:], uint32(r.Status))
	copy(out[7:], r.Reply[:n])
	return out
}

func DecodeResponse(b []byte) (Response, bool) {
	if len(b) < 7 {
		return Response{}, false
	}
	return Response{
		Magic:      b[0],
		OpcodePlus: binary.LittleEndian.Uint16(b[1:]),
		Status:     status.Code(binary.LittleEndian.Uint32(b[3:])),
		Reply:      append([]byte(nil), b[7:]...),
	}, true
}

// makeResponse builds the standard success/failure envelope for
// opcode, echoing opcode+1 unless stale overrides it.
func makeResponse(opcode Opcode, st status.Code, reply []byte, stale bool) Response {
	tag := uint16(opcode) + 1
	if stale {
		tag = StaleEntrySentinel
	}
	return Response{Magic: RespMagic, OpcodePlus: tag, Status: st, Reply: reply}
}
