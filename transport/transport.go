// Package transport provides the byte-stream capability the protocol layer
// runs on: exact-length reads and complete writes over a device connection.
//
// The protocol layer has no timeout or cancellation of its own; a hung read
// or write blocks the calling goroutine. Timeout policy belongs here: a
// Transport implementation is free to set deadlines on its connection.
package transport

import (
	"fmt"
	"io"
	"net"
	"sync"
)

// Transport is one byte-stream channel to a device. Open and Close are
// idempotent. Read blocks until exactly n bytes arrive and fails on short
// read or EOF; Write returns only after the whole slice is written.
//
// A Transport instance belongs to a single session at a time; independent
// sessions need distinct instances.
type Transport interface {
	Open() error
	Close() error
	Read(n int) ([]byte, error)
	Write(p []byte) error
}

// TCP is a Transport over a TCP connection, dialed lazily on Open.
type TCP struct {
	addr string

	mu   sync.Mutex // guards conn across Open/Close only; I/O is single-caller
	conn net.Conn
}

// NewTCP returns an unopened TCP transport for addr ("host:port").
func NewTCP(addr string) *TCP {
	return &TCP{addr: addr}
}

// Open dials the device. It does nothing if already opened.
func (t *TCP) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn != nil {
		return nil
	}
	conn, err := net.Dial("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	t.conn = conn
	return nil
}

// Close closes the connection. It does nothing if already closed.
func (t *TCP) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// Read returns exactly n bytes from the connection.
func (t *TCP) Read(n int) ([]byte, error) {
	if err := t.Open(); err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(t.conn, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write writes the whole slice to the connection.
func (t *TCP) Write(p []byte) error {
	if err := t.Open(); err != nil {
		return err
	}
	_, err := t.conn.Write(p)
	return err
}

// Stream adapts any io.ReadWriteCloser (a pipe, a serial port handle, an
// in-memory buffer pair in tests) into a Transport.
type Stream struct {
	rwc    io.ReadWriteCloser
	closed bool
	mu     sync.Mutex
}

// NewStream returns a Transport over rwc.
func NewStream(rwc io.ReadWriteCloser) *Stream {
	return &Stream{rwc: rwc}
}

// Open does nothing: the underlying stream is already established.
func (s *Stream) Open() error { return nil }

// Close closes the underlying stream once.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.rwc.Close()
}

// Read returns exactly n bytes from the stream.
func (s *Stream) Read(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(s.rwc, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Write writes the whole slice to the stream.
func (s *Stream) Write(p []byte) error {
	n, err := s.rwc.Write(p)
	if err != nil {
		return err
	}
	if n != len(p) {
		return io.ErrShortWrite
	}
	return nil
}
