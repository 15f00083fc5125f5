package message

import "fmt"

// RemoteException is the structured fault record exchanged with the device.
//
// The device sends one (KERNEL_EXCEPTION) when the running kernel faults,
// including a backtrace of raw addresses. The host sends the same shape
// minus the backtrace (RPC_EXCEPTION) when a serviced RPC callable fails.
// The location fields are best-effort diagnostics; Column is -1 when not
// known.
type RemoteException struct {
	Name    string
	Message string
	Params  [3]int64

	Filename string
	Line     int32
	Column   int32
	Function string

	Backtrace []int32
}

func (e *RemoteException) Error() string {
	if e.Filename == "" {
		return fmt.Sprintf("%s: %s", e.Name, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s:%d, in %s)",
		e.Name, e.Message, e.Filename, e.Line, e.Function)
}
