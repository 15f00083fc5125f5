// End-to-end exercise of the full host stack: transport → framing → codec →
// session → rpcmap dispatch with middleware, against a scripted device.
package test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"corelink/message"
	"corelink/middleware"
	"corelink/protocol"
	"corelink/rpcmap"
	"corelink/session"
	"corelink/transport"
)

// scriptedDevice plays a fixed byte script on reads and records writes.
type scriptedDevice struct {
	in  bytes.Buffer
	out bytes.Buffer
}

func (d *scriptedDevice) Read(p []byte) (int, error)  { return d.in.Read(p) }
func (d *scriptedDevice) Write(p []byte) (int, error) { return d.out.Write(p) }
func (d *scriptedDevice) Close() error                { return nil }

func bInt32(v int32) []byte { return binary.BigEndian.AppendUint32(nil, uint32(v)) }

func bStr(s string) []byte {
	b := bInt32(int32(len(s) + 1))
	b = append(b, s...)
	return append(b, 0)
}

func frame(kind protocol.DeviceKind, parts ...[]byte) []byte {
	body := bytes.Join(parts, nil)
	f := []byte{protocol.SyncByte, protocol.SyncByte, protocol.SyncByte, protocol.SyncByte}
	f = binary.BigEndian.AppendUint32(f, uint32(len(body)+protocol.HeaderOverhead))
	f = append(f, byte(kind))
	return append(f, body...)
}

// nextHostFrame parses one host→device frame off the captured output.
func nextHostFrame(t *testing.T, out *bytes.Buffer) (protocol.HostKind, []byte) {
	t.Helper()
	head := make([]byte, protocol.SyncLen+5)
	_, err := out.Read(head)
	require.NoError(t, err)
	for i := 0; i < protocol.SyncLen; i++ {
		require.Equal(t, protocol.SyncByte, head[i], "sync byte %d", i)
	}
	length := int(binary.BigEndian.Uint32(head[protocol.SyncLen:]))
	require.GreaterOrEqual(t, length, protocol.HeaderOverhead)
	body := make([]byte, length-protocol.HeaderOverhead)
	_, err = out.Read(body)
	require.NoError(t, err)
	return protocol.HostKind(head[protocol.SyncLen+4]), body
}

func TestFullKernelRun(t *testing.T) {
	dev := &scriptedDevice{}

	// Script: identity, load acknowledgement, then while the kernel runs:
	// one RPC call (service 3: add the int32 arguments) followed by a
	// clean finish. Some line noise precedes the first frame.
	dev.in.Write([]byte{0xde, 0xad, 0xbe, 0xef})
	dev.in.Write(frame(protocol.IdentReply, []byte("AROR")))
	dev.in.Write(frame(protocol.LoadCompleted))
	dev.in.Write(frame(protocol.RPCRequest,
		bInt32(3),
		[]byte{'i'}, bInt32(40),
		[]byte{'i'}, bInt32(2),
		[]byte{0x00},
	))
	dev.in.Write(frame(protocol.KernelFinished))

	logger := zap.NewNop()
	sess := session.New(transport.NewStream(dev), logger)

	m := rpcmap.New()
	m.Use(middleware.Recovery(logger))
	m.Use(middleware.Logging(logger))
	var served int
	m.Register(3, func(a, b int32) int32 {
		served++
		return a + b
	})

	require.NoError(t, sess.CheckIdent())
	require.NoError(t, sess.Load([]byte{0x7f, 'E', 'L', 'F'}))
	require.NoError(t, sess.Run())
	require.NoError(t, sess.Serve(m))
	assert.Equal(t, 1, served)

	// The host must have written exactly: IDENT_REQUEST, LOAD_LIBRARY,
	// RUN_KERNEL, RPC_REPLY(42).
	kind, body := nextHostFrame(t, &dev.out)
	assert.Equal(t, protocol.IdentRequest, kind)
	assert.Empty(t, body)

	kind, body = nextHostFrame(t, &dev.out)
	assert.Equal(t, protocol.LoadLibrary, kind)
	assert.Equal(t, []byte{0x7f, 'E', 'L', 'F'}, body)

	kind, _ = nextHostFrame(t, &dev.out)
	assert.Equal(t, protocol.RunKernel, kind)

	kind, body = nextHostFrame(t, &dev.out)
	assert.Equal(t, protocol.RPCReply, kind)
	assert.Equal(t, bInt32(42), body)

	assert.Zero(t, dev.out.Len(), "no further frames written")
}

func TestKernelFaultPropagates(t *testing.T) {
	dev := &scriptedDevice{}
	dev.in.Write(frame(protocol.KernelException,
		bStr("RTIOUnderflow"),
		bStr("event submitted too late"),
		binary.BigEndian.AppendUint64(nil, 100),
		binary.BigEndian.AppendUint64(nil, 0),
		binary.BigEndian.AppendUint64(nil, 0),
		bStr("exp.py"), bInt32(12), bInt32(3), bStr("pulse"),
		bInt32(1), bInt32(0x40001000),
	))

	sess := session.New(transport.NewStream(dev), nil)
	err := sess.Serve(rpcmap.New())
	var exn *message.RemoteException
	require.ErrorAs(t, err, &exn)
	assert.Equal(t, "RTIOUnderflow", exn.Name)
	assert.Equal(t, [3]int64{100, 0, 0}, exn.Params)
	assert.Equal(t, []int32{0x40001000}, exn.Backtrace)
	assert.Zero(t, dev.out.Len(), "a kernel fault triggers no reply")
}

func TestObjectReferenceDispatch(t *testing.T) {
	type camera struct{ exposures int32 }
	cam := &camera{exposures: 5}

	dev := &scriptedDevice{}
	dev.in.Write(frame(protocol.RPCRequest,
		bInt32(2),
		[]byte{'o'}, bInt32(1), // reference to the registered camera
		[]byte{0x00},
	))
	dev.in.Write(frame(protocol.KernelFinished))

	m := rpcmap.New()
	m.Register(1, cam)
	m.Register(2, func(c *camera) int32 { return c.exposures })

	sess := session.New(transport.NewStream(dev), nil)
	require.NoError(t, sess.Serve(m))

	kind, body := nextHostFrame(t, &dev.out)
	assert.Equal(t, protocol.RPCReply, kind)
	assert.Equal(t, bInt32(5), body)
}
