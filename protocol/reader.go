package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"
)

// ByteSource is the read half of the transport capability: Read blocks
// until exactly n bytes are available and fails on short read or EOF.
type ByteSource interface {
	Read(n int) ([]byte, error)
}

// Reader parses device→host frames from a byte source.
//
// It owns the read-side protocol state: the kind declared by the current
// header and the number of body bytes not yet consumed. The state is
// mutated only by ReadHeader and ReadChunk; callers must not interleave two
// in-flight operations (single-caller discipline, no internal locking).
type Reader struct {
	src       ByteSource
	kind      DeviceKind
	remaining int
	log       *zap.Logger
}

// NewReader returns a Reader on src. logger may be nil.
func NewReader(src ByteSource, logger *zap.Logger) *Reader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reader{src: src, log: logger}
}

// Kind returns the message kind declared by the last header read.
func (r *Reader) Kind() DeviceKind { return r.kind }

// Remaining returns the number of unread body bytes in the current message.
func (r *Reader) Remaining() int { return r.remaining }

// ReadHeader blocks until a synchronization sequence is seen, then parses
// the length and kind of the next message.
//
// The sync scan tolerates arbitrary noise: any byte other than 0x5a resets
// the match counter. The errors are not tolerant: a zero length is an
// in-band connection close, a length below the header overhead is a header
// overrun, and an unknown kind code is a decode failure. Calling ReadHeader
// while the previous body still has unread bytes is a read underrun.
func (r *Reader) ReadHeader() error {
	if r.remaining > 0 {
		return fmt.Errorf("%w (%d bytes remaining)", ErrReadUnderrun, r.remaining)
	}

	// Wait for the synchronization sequence, 5a 5a 5a 5a.
	syncCount := 0
	for syncCount < SyncLen {
		b, err := r.src.Read(1)
		if err != nil {
			return err
		}
		if b[0] == SyncByte {
			syncCount++
		} else {
			syncCount = 0
		}
	}

	rawLen, err := r.src.Read(4)
	if err != nil {
		return err
	}
	length := int32(binary.BigEndian.Uint32(rawLen))
	if length == 0 { // in-band connection close
		return ErrConnectionClosed
	}
	if length < HeaderOverhead {
		return fmt.Errorf("%w (%d remaining)", ErrHeaderOverrun, length)
	}

	rawKind, err := r.src.Read(1)
	if err != nil {
		return err
	}
	kind := DeviceKind(rawKind[0])
	if !kind.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownKind, rawKind[0])
	}

	r.kind = kind
	r.remaining = int(length) - HeaderOverhead
	r.log.Debug("receiving message",
		zap.Stringer("kind", r.kind),
		zap.Int("length", r.remaining))
	return nil
}

// Expect fails with a MismatchError if the last header's kind is not want.
func (r *Reader) Expect(want DeviceKind) error {
	if r.kind != want {
		return &MismatchError{Got: r.kind, Want: want}
	}
	return nil
}

// ReadChunk returns exactly n body bytes, failing with a read overrun if
// the current message has fewer than n bytes left. A negative n is a
// corrupt wire-supplied length and is rejected the same way, before any
// allocation happens.
func (r *Reader) ReadChunk(n int) ([]byte, error) {
	if n < 0 || n > r.remaining {
		return nil, fmt.Errorf("%w while trying to read %d bytes (%d remaining) in packet %v",
			ErrReadOverrun, n, r.remaining, r.kind)
	}
	r.remaining -= n
	return r.src.Read(n)
}

// ReadRest returns the entire unread remainder of the current message body.
func (r *Reader) ReadRest() ([]byte, error) {
	return r.ReadChunk(r.remaining)
}

// ReadInt8 decodes one body byte as an unsigned 8-bit value.
func (r *Reader) ReadInt8() (uint8, error) {
	b, err := r.ReadChunk(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadInt32 decodes a big-endian signed 32-bit body value.
func (r *Reader) ReadInt32() (int32, error) {
	b, err := r.ReadChunk(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt64 decodes a big-endian signed 64-bit body value.
func (r *Reader) ReadInt64() (int64, error) {
	b, err := r.ReadChunk(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadFloat64 decodes a big-endian IEEE 754 double body value.
func (r *Reader) ReadFloat64() (float64, error) {
	b, err := r.ReadChunk(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadBytes decodes a length-prefixed byte blob.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadInt32()
	if err != nil {
		return nil, err
	}
	return r.ReadChunk(int(n))
}

// ReadString decodes a length-prefixed, NUL-terminated UTF-8 string. The
// terminator is part of the blob on the wire and stripped here.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	if len(b) > 0 && b[len(b)-1] == 0 {
		b = b[:len(b)-1]
	}
	return string(b), nil
}
