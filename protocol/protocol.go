// Package protocol implements the binary frame protocol spoken with the
// core device over a byte-stream transport (TCP, serial bridge, pipe).
//
// Every frame starts with a synchronization sequence of four 0x5a bytes,
// so the reader can resynchronize after arbitrary line noise. The header
// that follows is a 4-byte big-endian signed length (header + body, minimum
// 9) and a 1-byte message kind. The receiver reads the header first to
// learn the body length, then reads exactly that many bytes.
//
// Frame format:
//
//	0          4          8    9
//	┌──────────┬──────────┬────┬────────────────┐
//	│   sync   │  length  │kind│    body ...    │
//	│ 5a 5a×3  │ int32 BE │ u8 │ length−9 bytes │
//	└──────────┴──────────┴────┴────────────────┘
//
// A frame whose length field is zero is an in-band connection close; it has
// no kind byte and no body. The host's reset pseudo-message uses the same
// shape in the other direction.
package protocol

import (
	"errors"
	"fmt"
)

// Wire constants.
const (
	SyncByte       byte = 0x5a // repeated four times at the start of every frame
	SyncLen             = 4
	HeaderOverhead      = 9 // the length field covers itself (4), the kind (1) and the sync (4)
)

// HostKind identifies a host→device message.
type HostKind uint8

const (
	LogRequest HostKind = iota + 1
	IdentRequest
	SwitchClock

	LoadLibrary
	RunKernel

	RPCReply
	RPCException

	FlashReadRequest
	FlashWriteRequest
	FlashEraseRequest
	FlashRemoveRequest
)

var hostKindNames = map[HostKind]string{
	LogRequest:         "LOG_REQUEST",
	IdentRequest:       "IDENT_REQUEST",
	SwitchClock:        "SWITCH_CLOCK",
	LoadLibrary:        "LOAD_LIBRARY",
	RunKernel:          "RUN_KERNEL",
	RPCReply:           "RPC_REPLY",
	RPCException:       "RPC_EXCEPTION",
	FlashReadRequest:   "FLASH_READ_REQUEST",
	FlashWriteRequest:  "FLASH_WRITE_REQUEST",
	FlashEraseRequest:  "FLASH_ERASE_REQUEST",
	FlashRemoveRequest: "FLASH_REMOVE_REQUEST",
}

func (k HostKind) String() string {
	if name, ok := hostKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("HostKind(%d)", uint8(k))
}

// DeviceKind identifies a device→host message.
type DeviceKind uint8

const (
	LogReply DeviceKind = iota + 1
	IdentReply
	ClockSwitchCompleted
	ClockSwitchFailed

	LoadCompleted
	LoadFailed

	KernelFinished
	KernelStartupFailed
	KernelException

	RPCRequest

	FlashReadReply
	FlashOKReply
	FlashErrorReply
)

var deviceKindNames = map[DeviceKind]string{
	LogReply:             "LOG_REPLY",
	IdentReply:           "IDENT_REPLY",
	ClockSwitchCompleted: "CLOCK_SWITCH_COMPLETED",
	ClockSwitchFailed:    "CLOCK_SWITCH_FAILED",
	LoadCompleted:        "LOAD_COMPLETED",
	LoadFailed:           "LOAD_FAILED",
	KernelFinished:       "KERNEL_FINISHED",
	KernelStartupFailed:  "KERNEL_STARTUP_FAILED",
	KernelException:      "KERNEL_EXCEPTION",
	RPCRequest:           "RPC_REQUEST",
	FlashReadReply:       "FLASH_READ_REPLY",
	FlashOKReply:         "FLASH_OK_REPLY",
	FlashErrorReply:      "FLASH_ERROR_REPLY",
}

func (k DeviceKind) String() string {
	if name, ok := deviceKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("DeviceKind(%d)", uint8(k))
}

// Valid reports whether k is a known device→host message kind.
func (k DeviceKind) Valid() bool {
	_, ok := deviceKindNames[k]
	return ok
}

// Protocol violation sentinels. All are fatal to the current operation and
// surface to the caller unretried; only a bad sync byte is tolerated (the
// reader silently resynchronizes).
var (
	// ErrConnectionClosed is returned when the peer signals an in-band
	// close with a zero-length header.
	ErrConnectionClosed = errors.New("connection closed")

	// ErrHeaderOverrun is returned when a header declares a length smaller
	// than the fixed header overhead.
	ErrHeaderOverrun = errors.New("read overrun in message header")

	// ErrReadUnderrun is returned when ReadHeader is called while the
	// previous message's body still has unread bytes. This is a caller
	// contract violation, not line noise, and it fails loudly instead of
	// skipping bytes.
	ErrReadUnderrun = errors.New("read underrun")

	// ErrReadOverrun is returned when a chunk read asks for more bytes
	// than the current message body has remaining.
	ErrReadOverrun = errors.New("read overrun")

	// ErrUnknownKind is returned when a header carries a kind code outside
	// the device→host set.
	ErrUnknownKind = errors.New("unknown message kind")
)

// MismatchError reports a reply of the wrong kind. It carries both sides of
// the comparison so callers can log exactly what the device sent.
type MismatchError struct {
	Got  DeviceKind
	Want DeviceKind
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("incorrect reply from device: %v (expected %v)", e.Got, e.Want)
}
