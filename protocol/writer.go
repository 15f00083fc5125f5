package protocol

import (
	"encoding/binary"
	"math"

	"go.uber.org/zap"
)

// ByteSink is the write half of the transport capability: Write returns
// only after the whole slice has been written, failing on short write.
type ByteSink interface {
	Write(p []byte) error
}

// Writer builds host→device frames.
//
// A message is assembled as an ordered list of chunks and hits the
// transport only on Flush, which emits sync, header and body back to back.
// No partial message is ever observable on the wire as long as callers
// keep to the single-writer discipline (no internal locking).
type Writer struct {
	sink   ByteSink
	kind   HostKind
	chunks [][]byte
	log    *zap.Logger
}

// NewWriter returns a Writer on sink. logger may be nil.
func NewWriter(sink ByteSink, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{sink: sink, log: logger}
}

// Kind returns the kind of the pending (or last flushed) message.
func (w *Writer) Kind() HostKind { return w.kind }

// BeginMessage starts a new message of the given kind, discarding any
// buffered chunks from an unflushed predecessor.
func (w *Writer) BeginMessage(kind HostKind) {
	w.log.Debug("preparing to send message", zap.Stringer("kind", kind))
	w.kind = kind
	w.chunks = w.chunks[:0]
}

// Flush writes the synchronization sequence, the header and every buffered
// chunk in order, then clears the buffer.
func (w *Writer) Flush() error {
	length := 0
	for _, c := range w.chunks {
		length += len(c)
	}
	w.log.Debug("sending message",
		zap.Stringer("kind", w.kind),
		zap.Int("length", length))

	head := make([]byte, SyncLen+5)
	for i := 0; i < SyncLen; i++ {
		head[i] = SyncByte
	}
	binary.BigEndian.PutUint32(head[SyncLen:], uint32(length+HeaderOverhead))
	head[SyncLen+4] = byte(w.kind)
	if err := w.sink.Write(head); err != nil {
		return err
	}
	for _, c := range w.chunks {
		if err := w.sink.Write(c); err != nil {
			return err
		}
	}
	w.chunks = w.chunks[:0]
	return nil
}

// WriteReset emits the session-reset pseudo-message: the sync sequence
// followed by a zero length, no kind byte and no body. It bypasses the
// normal buffering because the frame deliberately has no header overhead.
func (w *Writer) WriteReset() error {
	buf := make([]byte, SyncLen+4)
	for i := 0; i < SyncLen; i++ {
		buf[i] = SyncByte
	}
	// the four length bytes stay zero
	return w.sink.Write(buf)
}

// AppendChunk buffers raw bytes for the pending message.
func (w *Writer) AppendChunk(chunk []byte) {
	w.chunks = append(w.chunks, chunk)
}

// WriteInt8 buffers an unsigned 8-bit value.
func (w *Writer) WriteInt8(v uint8) {
	w.AppendChunk([]byte{v})
}

// WriteInt32 buffers a big-endian signed 32-bit value.
func (w *Writer) WriteInt32(v int32) {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(v))
	w.AppendChunk(b)
}

// WriteInt64 buffers a big-endian signed 64-bit value.
func (w *Writer) WriteInt64(v int64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	w.AppendChunk(b)
}

// WriteFloat64 buffers a big-endian IEEE 754 double.
func (w *Writer) WriteFloat64(v float64) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, math.Float64bits(v))
	w.AppendChunk(b)
}

// WriteBytes buffers a length-prefixed byte blob.
func (w *Writer) WriteBytes(v []byte) {
	w.WriteInt32(int32(len(v)))
	w.AppendChunk(v)
}

// WriteString buffers a string as a length-prefixed UTF-8 blob with a
// trailing NUL, matching the reader's ReadString.
func (w *Writer) WriteString(v string) {
	b := make([]byte, 0, len(v)+1)
	b = append(b, v...)
	b = append(b, 0)
	w.WriteBytes(b)
}
