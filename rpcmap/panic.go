package rpcmap

import (
	"fmt"
	"runtime"
	"strings"
)

// PanicError is a callable panic converted into an ordinary failure. It
// carries the innermost frame of the panicking callable so the exception
// reply sent to the device names where the fault originated. The location
// is best-effort diagnostics only.
type PanicError struct {
	Value    any
	File     string
	Line     int32
	Function string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Location implements the serve loop's locator capability.
func (e *PanicError) Location() (string, int32, string) {
	return e.File, e.Line, e.Function
}

// newPanicError captures the innermost stack frame below the runtime's
// panic machinery and this package's dispatch plumbing.
func newPanicError(value any) *PanicError {
	e := &PanicError{Value: value}

	var pcs [32]uintptr
	n := runtime.Callers(3, pcs[:])
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" &&
			!strings.HasPrefix(frame.Function, "runtime.") &&
			!strings.Contains(frame.Function, "corelink/rpcmap.") &&
			!strings.HasPrefix(frame.Function, "reflect.") {
			e.File = frame.File
			e.Line = int32(frame.Line)
			e.Function = trimPkg(frame.Function)
			break
		}
		if !more {
			break
		}
	}
	return e
}
