package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// wire is an in-memory byte stream implementing ByteSource and ByteSink.
type wire struct {
	buf bytes.Buffer
}

func (w *wire) Read(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := w.buf.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (w *wire) Write(p []byte) error {
	w.buf.Write(p)
	return nil
}

// deviceFrame builds one device→host frame: sync + length + kind + body.
func deviceFrame(kind DeviceKind, body []byte) []byte {
	frame := []byte{SyncByte, SyncByte, SyncByte, SyncByte}
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(body)+HeaderOverhead))
	frame = append(frame, byte(kind))
	return append(frame, body...)
}

func TestReadHeader(t *testing.T) {
	w := &wire{}
	w.Write(deviceFrame(LogReply, []byte("hello")))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if r.Kind() != LogReply {
		t.Errorf("kind mismatch: got %v, want %v", r.Kind(), LogReply)
	}
	if r.Remaining() != 5 {
		t.Errorf("remaining mismatch: got %d, want 5", r.Remaining())
	}

	body, err := r.ReadChunk(5)
	if err != nil {
		t.Fatalf("ReadChunk failed: %v", err)
	}
	if !bytes.Equal(body, []byte("hello")) {
		t.Errorf("body mismatch: got %q", body)
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining after full read: got %d, want 0", r.Remaining())
	}
}

func TestReadHeaderResynchronizes(t *testing.T) {
	// Arbitrary noise before the sync sequence, including partial syncs,
	// must be skipped without error.
	noise := []byte{0x00, 0xff, SyncByte, SyncByte, 0x13, SyncByte, 0x42}

	w := &wire{}
	w.Write(noise)
	w.Write(deviceFrame(KernelFinished, nil))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed to resync: %v", err)
	}
	if r.Kind() != KernelFinished {
		t.Errorf("kind mismatch after resync: got %v", r.Kind())
	}
}

func TestReadHeaderConnectionClosed(t *testing.T) {
	w := &wire{}
	w.Write([]byte{SyncByte, SyncByte, SyncByte, SyncByte, 0, 0, 0, 0})

	r := NewReader(w, nil)
	if err := r.ReadHeader(); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestReadHeaderOverrun(t *testing.T) {
	// Length 8 is below the 9-byte header overhead.
	w := &wire{}
	w.Write([]byte{SyncByte, SyncByte, SyncByte, SyncByte, 0, 0, 0, 8})

	r := NewReader(w, nil)
	if err := r.ReadHeader(); !errors.Is(err, ErrHeaderOverrun) {
		t.Fatalf("expected ErrHeaderOverrun, got %v", err)
	}
}

func TestReadHeaderUnknownKind(t *testing.T) {
	w := &wire{}
	frame := deviceFrame(LogReply, nil)
	frame[8] = 0x7f // no such device→host kind
	w.Write(frame)

	r := NewReader(w, nil)
	if err := r.ReadHeader(); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
}

func TestReadHeaderUnderrun(t *testing.T) {
	w := &wire{}
	w.Write(deviceFrame(LogReply, []byte("unread")))
	w.Write(deviceFrame(LogReply, nil))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("first ReadHeader failed: %v", err)
	}
	// The first body was never drained: the second header read must fail
	// loudly instead of silently skipping bytes.
	if err := r.ReadHeader(); !errors.Is(err, ErrReadUnderrun) {
		t.Fatalf("expected ErrReadUnderrun, got %v", err)
	}
}

func TestReadChunkOverrun(t *testing.T) {
	w := &wire{}
	w.Write(deviceFrame(LogReply, []byte("abc")))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if _, err := r.ReadChunk(4); !errors.Is(err, ErrReadOverrun) {
		t.Fatalf("expected ErrReadOverrun, got %v", err)
	}
	// The overrun must not have consumed anything.
	if r.Remaining() != 3 {
		t.Errorf("remaining changed by failed chunk: got %d, want 3", r.Remaining())
	}
}

func TestReadChunkNegative(t *testing.T) {
	// A negative count comes from a corrupt wire-supplied length prefix and
	// must fail like an overrun, not reach an allocation.
	w := &wire{}
	w.Write(deviceFrame(LogReply, []byte("abc")))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if _, err := r.ReadChunk(-2); !errors.Is(err, ErrReadOverrun) {
		t.Fatalf("expected ErrReadOverrun, got %v", err)
	}
	if r.Remaining() != 3 {
		t.Errorf("remaining changed by rejected chunk: got %d, want 3", r.Remaining())
	}
}

func TestExpectMismatch(t *testing.T) {
	w := &wire{}
	w.Write(deviceFrame(LoadFailed, nil))

	r := NewReader(w, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	err := r.Expect(LoadCompleted)
	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected MismatchError, got %v", err)
	}
	if mismatch.Got != LoadFailed || mismatch.Want != LoadCompleted {
		t.Errorf("mismatch fields: got %v/%v", mismatch.Got, mismatch.Want)
	}
}

func TestWriterFlush(t *testing.T) {
	w := &wire{}
	wr := NewWriter(w, nil)

	wr.BeginMessage(SwitchClock)
	wr.WriteInt8(1)
	if err := wr.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := []byte{
		SyncByte, SyncByte, SyncByte, SyncByte,
		0, 0, 0, 10, // 1 body byte + 9 overhead
		byte(SwitchClock),
		1,
	}
	if !bytes.Equal(w.buf.Bytes(), want) {
		t.Errorf("frame mismatch:\n got %x\nwant %x", w.buf.Bytes(), want)
	}
}

func TestWriterBeginDiscardsUnflushed(t *testing.T) {
	w := &wire{}
	wr := NewWriter(w, nil)

	wr.BeginMessage(LogRequest)
	wr.WriteInt32(0x1234)
	wr.BeginMessage(IdentRequest) // abandons the previous body
	if err := wr.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	want := []byte{
		SyncByte, SyncByte, SyncByte, SyncByte,
		0, 0, 0, 9,
		byte(IdentRequest),
	}
	if !bytes.Equal(w.buf.Bytes(), want) {
		t.Errorf("frame mismatch:\n got %x\nwant %x", w.buf.Bytes(), want)
	}
}

func TestWriteReset(t *testing.T) {
	w := &wire{}
	wr := NewWriter(w, nil)
	if err := wr.WriteReset(); err != nil {
		t.Fatalf("WriteReset failed: %v", err)
	}
	want := []byte{SyncByte, SyncByte, SyncByte, SyncByte, 0, 0, 0, 0}
	if !bytes.Equal(w.buf.Bytes(), want) {
		t.Errorf("reset frame mismatch: got %x, want %x", w.buf.Bytes(), want)
	}
}

func TestTypedRoundTrip(t *testing.T) {
	w := &wire{}
	wr := NewWriter(w, nil)

	wr.BeginMessage(RPCReply)
	wr.WriteInt8(0xab)
	wr.WriteInt32(-123456)
	wr.WriteInt64(-1 << 40)
	wr.WriteFloat64(2.5e-3)
	wr.WriteBytes([]byte{1, 2, 3})
	wr.WriteString("héllo")
	if err := wr.Flush(); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	// The reader validates kinds against the device→host set, so replay
	// the frame with a device kind of the same numeric value.
	frame := w.buf.Bytes()
	frame[8] = byte(RPCRequest)
	rw := &wire{}
	rw.Write(frame)

	r := NewReader(rw, nil)
	if err := r.ReadHeader(); err != nil {
		t.Fatalf("ReadHeader failed: %v", err)
	}
	if v, _ := r.ReadInt8(); v != 0xab {
		t.Errorf("int8: got %#x", v)
	}
	if v, _ := r.ReadInt32(); v != -123456 {
		t.Errorf("int32: got %d", v)
	}
	if v, _ := r.ReadInt64(); v != -1<<40 {
		t.Errorf("int64: got %d", v)
	}
	if v, _ := r.ReadFloat64(); v != 2.5e-3 {
		t.Errorf("float64: got %g", v)
	}
	if v, _ := r.ReadBytes(); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("bytes: got %v", v)
	}
	if v, _ := r.ReadString(); v != "héllo" {
		t.Errorf("string: got %q", v)
	}
	if r.Remaining() != 0 {
		t.Errorf("remaining: got %d, want 0", r.Remaining())
	}
}
