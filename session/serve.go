package session

import (
	"errors"
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"corelink/codec"
	"corelink/message"
	"corelink/protocol"
)

// Handler is the capability the serve loop dispatches into: it resolves
// object references and services RPC calls by index. The RPC map supplied
// by the caller is read-only from this layer's perspective.
type Handler interface {
	codec.ObjectResolver

	// ServeRPC invokes the callable registered under service with the
	// decoded positional arguments and returns its result, which must be
	// representable as a signed 32-bit integer.
	ServeRPC(service int32, args []message.Value) (message.Value, error)
}

// locator is implemented by handler failures that know where they
// originated. The location is best-effort diagnostic metadata only.
type locator interface {
	Location() (filename string, line int32, function string)
}

// Serve processes device-initiated messages until the kernel signals
// completion. The three terminal outcomes are:
//
//   - nil: the device sent KERNEL_FINISHED;
//   - *message.RemoteException (match with errors.As): the kernel faulted
//     and the device reported a full exception record;
//   - any other error: an I/O or protocol failure on this side.
//
// A failing RPC callable is not terminal: the failure is encoded back to
// the device as an RPC exception reply and the loop continues.
func (s *Session) Serve(handler Handler) error {
	err := s.serve(handler)
	switch {
	case err == nil:
		s.m.KernelsFinished.Inc()
	case errors.As(err, new(*message.RemoteException)):
		s.m.KernelExceptions.Inc()
	default:
		s.m.SessionErrors.Inc()
	}
	return err
}

func (s *Session) serve(handler Handler) error {
	for {
		if err := s.readHeader(); err != nil {
			return err
		}
		switch s.r.Kind() {
		case protocol.RPCRequest:
			if err := s.serveRPC(handler); err != nil {
				return err
			}
		case protocol.KernelException:
			return s.serveException()
		default:
			// KERNEL_FINISHED is the only clean terminal.
			if err := s.r.Expect(protocol.KernelFinished); err != nil {
				return err
			}
			return nil
		}
	}
}

func (s *Session) serveRPC(handler Handler) error {
	service, err := s.r.ReadInt32()
	if err != nil {
		return err
	}
	dec := codec.NewDecoder(s.r, handler)
	args, err := dec.DecodeArgs()
	if err != nil {
		return err
	}
	s.log.Debug("rpc service",
		zap.Int32("service", service),
		zap.Int("args", len(args)))

	result, callErr := handler.ServeRPC(service, args)
	if callErr == nil {
		s.w.BeginMessage(protocol.RPCReply)
		enc := codec.NewEncoder(s.w)
		// An out-of-range or non-integral result is a contract violation
		// of the callable, reported back like any other callable failure.
		if callErr = enc.EncodeResult(result); callErr == nil {
			s.m.RPCServed.Inc()
			return s.flush()
		}
	}

	s.log.Debug("rpc service failed",
		zap.Int32("service", service),
		zap.Error(callErr))
	s.writeException(callErr)
	s.m.RPCExceptions.Inc()
	return s.flush()
}

// writeException buffers an RPC_EXCEPTION reply for a callable failure. A
// failure that is itself a RemoteException is forwarded field by field
// (minus the backtrace); anything else gets a synthesized record with the
// origin location filled in best-effort and the column marked unknown.
func (s *Session) writeException(callErr error) {
	s.w.BeginMessage(protocol.RPCException)

	var exn *message.RemoteException
	if errors.As(callErr, &exn) {
		s.w.WriteString(exn.Name)
		s.w.WriteString(exn.Message)
		for _, p := range exn.Params {
			s.w.WriteInt64(p)
		}
		s.w.WriteString(exn.Filename)
		s.w.WriteInt32(exn.Line)
		s.w.WriteInt32(exn.Column)
		s.w.WriteString(exn.Function)
		return
	}

	s.w.WriteString(errorName(callErr))
	s.w.WriteString(callErr.Error())
	for i := 0; i < 3; i++ {
		s.w.WriteInt64(0)
	}
	var filename, function string
	var line int32
	var loc locator
	if errors.As(callErr, &loc) {
		filename, line, function = loc.Location()
	}
	s.w.WriteString(filename)
	s.w.WriteInt32(line)
	s.w.WriteInt32(-1) // column not known
	s.w.WriteString(function)
}

// errorName derives the exception name sent to the device from the
// failure's concrete type, mirroring how RemoteException carries a name.
func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if name := t.Name(); name != "" {
		return name
	}
	return t.String()
}

func (s *Session) serveException() error {
	exn := &message.RemoteException{}
	var err error
	if exn.Name, err = s.r.ReadString(); err != nil {
		return err
	}
	if exn.Message, err = s.r.ReadString(); err != nil {
		return err
	}
	for i := range exn.Params {
		if exn.Params[i], err = s.r.ReadInt64(); err != nil {
			return err
		}
	}
	if exn.Filename, err = s.r.ReadString(); err != nil {
		return err
	}
	if exn.Line, err = s.r.ReadInt32(); err != nil {
		return err
	}
	if exn.Column, err = s.r.ReadInt32(); err != nil {
		return err
	}
	if exn.Function, err = s.r.ReadString(); err != nil {
		return err
	}
	depth, err := s.r.ReadInt32()
	if err != nil {
		return err
	}
	// 4 body bytes per backtrace address; validate before allocating.
	if depth < 0 || int(depth)*4 > s.r.Remaining() {
		return fmt.Errorf("%w: backtrace depth %d in %d remaining bytes",
			protocol.ErrReadOverrun, depth, s.r.Remaining())
	}
	exn.Backtrace = make([]int32, depth)
	for i := range exn.Backtrace {
		if exn.Backtrace[i], err = s.r.ReadInt32(); err != nil {
			return err
		}
	}
	// No debug information to symbolize the backtrace with yet; it is
	// carried raw on the record.
	return exn
}
