// Package session drives one core device over a byte-stream transport: the
// synchronous request/reply command surface (identify, clock switch, log
// fetch, flash storage, kernel load and run) and the serve loop that
// services device-initiated RPC calls while a kernel executes.
//
// A Session is strictly single-caller: reads and writes alternate following
// the protocol, and a second operation must not start before the previous
// one returns. There is no internal locking and no timeout; a hung
// transport blocks the calling goroutine.
package session

import (
	"bytes"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"corelink/metrics"
	"corelink/protocol"
	"corelink/transport"
)

// ErrUnsupportedDevice is returned by CheckIdent when the device does not
// report the expected runtime identifier. It is deliberately distinct from
// the protocol violation errors: the exchange itself was well-formed, the
// peer is just not something this host can drive.
var ErrUnsupportedDevice = errors.New("unsupported device")

// runtimeIdent is the 4-byte runtime identifier a supported device reports.
var runtimeIdent = []byte("AROR")

// ErrStorageFull is returned by FlashWrite when the device answers with
// FLASH_ERROR_REPLY instead of an acknowledgement.
var ErrStorageFull = errors.New("flash storage is full")

// Session is one protocol session with a core device.
type Session struct {
	t   transport.Transport
	r   *protocol.Reader
	w   *protocol.Writer
	log *zap.Logger
	m   *metrics.Registry
}

// New opens a session over t. logger may be nil.
func New(t transport.Transport, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		t:   t,
		r:   protocol.NewReader(t, logger),
		w:   protocol.NewWriter(t, logger),
		log: logger,
		m:   metrics.Get(),
	}
}

// Close closes the underlying transport. Idempotent.
func (s *Session) Close() error { return s.t.Close() }

func (s *Session) readHeader() error {
	if err := s.t.Open(); err != nil {
		return err
	}
	if err := s.r.ReadHeader(); err != nil {
		return err
	}
	s.m.FramesRead.WithLabelValues(s.r.Kind().String()).Inc()
	return nil
}

func (s *Session) readEmpty(want protocol.DeviceKind) error {
	if err := s.readHeader(); err != nil {
		return err
	}
	return s.r.Expect(want)
}

func (s *Session) begin(kind protocol.HostKind) error {
	if err := s.t.Open(); err != nil {
		return err
	}
	s.w.BeginMessage(kind)
	return nil
}

func (s *Session) flush() error {
	if err := s.w.Flush(); err != nil {
		return err
	}
	s.m.FramesWritten.WithLabelValues(s.w.Kind().String()).Inc()
	return nil
}

func (s *Session) writeEmpty(kind protocol.HostKind) error {
	if err := s.begin(kind); err != nil {
		return err
	}
	return s.flush()
}

// ResetSession sends the raw reset pseudo-message (sync plus a zero
// length). Fire-and-forget: the device sends no reply.
func (s *Session) ResetSession() error {
	if err := s.t.Open(); err != nil {
		return err
	}
	return s.w.WriteReset()
}

// CheckIdent verifies the device runs a supported runtime. Any identity
// payload other than the expected 4 bytes fails with ErrUnsupportedDevice.
func (s *Session) CheckIdent() error {
	if err := s.writeEmpty(protocol.IdentRequest); err != nil {
		return err
	}
	if err := s.readEmpty(protocol.IdentReply); err != nil {
		return err
	}
	ident, err := s.r.ReadChunk(4)
	if err != nil {
		return err
	}
	if !bytes.Equal(ident, runtimeIdent) {
		return fmt.Errorf("%w: runtime ID %q", ErrUnsupportedDevice, ident)
	}
	return nil
}

// SwitchClock selects the device clock source (external when the flag is
// nonzero) and waits for completion.
func (s *Session) SwitchClock(external uint8) error {
	if err := s.begin(protocol.SwitchClock); err != nil {
		return err
	}
	s.w.WriteInt8(external)
	if err := s.flush(); err != nil {
		return err
	}
	return s.readEmpty(protocol.ClockSwitchCompleted)
}

// GetLog fetches the device log buffer as UTF-8 text.
func (s *Session) GetLog() (string, error) {
	if err := s.writeEmpty(protocol.LogRequest); err != nil {
		return "", err
	}
	if err := s.readEmpty(protocol.LogReply); err != nil {
		return "", err
	}
	body, err := s.r.ReadRest()
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// FlashRead returns the raw value stored under key in flash storage.
func (s *Session) FlashRead(key string) ([]byte, error) {
	if err := s.begin(protocol.FlashReadRequest); err != nil {
		return nil, err
	}
	s.w.WriteString(key)
	if err := s.flush(); err != nil {
		return nil, err
	}
	if err := s.readEmpty(protocol.FlashReadReply); err != nil {
		return nil, err
	}
	return s.r.ReadRest()
}

// FlashWrite stores value under key in flash storage. A FLASH_ERROR_REPLY
// from the device means the storage is full and is reported as
// ErrStorageFull, distinct from a generic reply mismatch.
func (s *Session) FlashWrite(key string, value []byte) error {
	if err := s.begin(protocol.FlashWriteRequest); err != nil {
		return err
	}
	s.w.WriteString(key)
	s.w.WriteBytes(value)
	if err := s.flush(); err != nil {
		return err
	}
	if err := s.readHeader(); err != nil {
		return err
	}
	if s.r.Kind() == protocol.FlashErrorReply {
		return ErrStorageFull
	}
	return s.r.Expect(protocol.FlashOKReply)
}

// FlashErase wipes the flash storage.
func (s *Session) FlashErase() error {
	if err := s.writeEmpty(protocol.FlashEraseRequest); err != nil {
		return err
	}
	return s.readEmpty(protocol.FlashOKReply)
}

// FlashRemove deletes the entry stored under key.
func (s *Session) FlashRemove(key string) error {
	if err := s.begin(protocol.FlashRemoveRequest); err != nil {
		return err
	}
	s.w.WriteString(key)
	if err := s.flush(); err != nil {
		return err
	}
	return s.readEmpty(protocol.FlashOKReply)
}

// Load uploads a compiled kernel binary and waits for the device to accept
// it. The binary format is opaque to this layer.
func (s *Session) Load(kernel []byte) error {
	if err := s.begin(protocol.LoadLibrary); err != nil {
		return err
	}
	s.w.AppendChunk(kernel)
	if err := s.flush(); err != nil {
		return err
	}
	return s.readEmpty(protocol.LoadCompleted)
}

// Run starts the previously loaded kernel. No reply is awaited; completion
// (or a fault) is observed through Serve.
func (s *Session) Run() error {
	if err := s.writeEmpty(protocol.RunKernel); err != nil {
		return err
	}
	s.log.Debug("running kernel")
	return nil
}
