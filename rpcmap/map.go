// Package rpcmap implements the host-side RPC map: a registry from small
// integer indices to callables and objects, sharing one index space. The
// serve loop dispatches device-initiated RPC calls through it and resolves
// object-reference values against it.
//
// Callables are plain Go functions invoked via reflection; decoded wire
// values are coerced to the parameter types and the single result is
// coerced back into a wire value. A middleware chain can be attached around
// dispatch (logging, rate limiting, panic recovery).
package rpcmap

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"corelink/message"
	"corelink/middleware"
)

// Map is an index→callable/object registry. Register everything before
// handing it to a serve loop: during a session the map is lookup-only.
type Map struct {
	entries map[int32]any

	middlewares []middleware.Middleware
	buildOnce   sync.Once
	handler     middleware.HandlerFunc
}

// New returns an empty Map.
func New() *Map {
	return &Map{entries: make(map[int32]any)}
}

// Register binds index to v. A function becomes a callable servicing RPC
// requests; anything else is an object-reference target. Both live in the
// same index space.
func (m *Map) Register(index int32, v any) {
	m.entries[index] = v
}

// Use appends a middleware around RPC dispatch. Middlewares are applied in
// registration order and must be added before the first call is serviced.
func (m *Map) Use(mw middleware.Middleware) {
	m.middlewares = append(m.middlewares, mw)
}

// ResolveObject implements codec.ObjectResolver.
func (m *Map) ResolveObject(index int32) (any, bool) {
	v, ok := m.entries[index]
	return v, ok
}

// ServeRPC implements the serve loop's handler capability.
func (m *Map) ServeRPC(service int32, args []message.Value) (message.Value, error) {
	m.buildOnce.Do(func() {
		m.handler = middleware.Chain(m.middlewares...)(m.invoke)
	})
	return m.handler(context.Background(), service, args)
}

// invoke is the terminal handler behind the middleware chain.
func (m *Map) invoke(_ context.Context, service int32, args []message.Value) (result message.Value, err error) {
	entry, ok := m.entries[service]
	if !ok {
		return nil, fmt.Errorf("no RPC service registered at index %d", service)
	}
	fn := reflect.ValueOf(entry)
	if fn.Kind() != reflect.Func {
		return nil, fmt.Errorf("RPC index %d holds a %T, not a callable", service, entry)
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, newPanicError(r)
		}
	}()

	in, err := coerceArgs(fn.Type(), args)
	if err != nil {
		return nil, fmt.Errorf("RPC service %d: %w", service, err)
	}
	out := fn.Call(in)
	return coerceResult(out)
}

func coerceArgs(ft reflect.Type, args []message.Value) ([]reflect.Value, error) {
	if ft.IsVariadic() {
		if len(args) < ft.NumIn()-1 {
			return nil, fmt.Errorf("got %d arguments, want at least %d", len(args), ft.NumIn()-1)
		}
	} else if len(args) != ft.NumIn() {
		return nil, fmt.Errorf("got %d arguments, want %d", len(args), ft.NumIn())
	}

	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = ft.In(ft.NumIn() - 1).Elem()
		} else {
			pt = ft.In(i)
		}
		v, err := coerceValue(pt, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	return in, nil
}

var (
	valueType = reflect.TypeOf((*message.Value)(nil)).Elem()
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// coerceValue converts one decoded wire value into the parameter type pt.
func coerceValue(pt reflect.Type, arg message.Value) (reflect.Value, error) {
	// Parameters declared as message.Value take the decoded value as is.
	if pt == valueType {
		return reflect.ValueOf(arg), nil
	}

	switch arg := arg.(type) {
	case message.None:
		if pt.Kind() == reflect.Interface || pt.Kind() == reflect.Pointer || pt.Kind() == reflect.Slice {
			return reflect.Zero(pt), nil
		}
	case message.Bool:
		if pt.Kind() == reflect.Bool {
			return reflect.ValueOf(bool(arg)).Convert(pt), nil
		}
	case message.Int32:
		if intKind(pt.Kind()) {
			return reflect.ValueOf(int64(arg)).Convert(pt), nil
		}
	case message.Int64:
		if intKind(pt.Kind()) {
			return reflect.ValueOf(int64(arg)).Convert(pt), nil
		}
	case message.Float64:
		if pt.Kind() == reflect.Float64 || pt.Kind() == reflect.Float32 {
			return reflect.ValueOf(float64(arg)).Convert(pt), nil
		}
	case message.Str:
		if pt.Kind() == reflect.String {
			return reflect.ValueOf(string(arg)).Convert(pt), nil
		}
	case message.Rational, message.Range:
		if pt.Kind() == reflect.Interface && reflect.TypeOf(arg).Implements(pt) {
			return reflect.ValueOf(arg), nil
		}
	case message.Tuple:
		return coerceSequence(pt, []message.Value(arg))
	case message.List:
		return coerceSequence(pt, []message.Value(arg))
	case message.ObjectRef:
		if arg.Object == nil {
			if pt.Kind() == reflect.Interface || pt.Kind() == reflect.Pointer {
				return reflect.Zero(pt), nil
			}
			break
		}
		obj := reflect.ValueOf(arg.Object)
		if obj.Type().AssignableTo(pt) {
			return obj, nil
		}
	}

	if pt.Kind() == reflect.Interface && reflect.TypeOf(arg).Implements(pt) {
		return reflect.ValueOf(arg), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot pass %v as %v", arg, pt)
}

func coerceSequence(pt reflect.Type, elems []message.Value) (reflect.Value, error) {
	if pt.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("cannot pass a sequence of %d values as %v", len(elems), pt)
	}
	out := reflect.MakeSlice(pt, len(elems), len(elems))
	for i, elem := range elems {
		v, err := coerceValue(pt.Elem(), elem)
		if err != nil {
			return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
		}
		out.Index(i).Set(v)
	}
	return out, nil
}

func intKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}

// coerceResult converts the callable's return values into one wire value.
// Legal shapes: (), (T), (T, error) or (error); T is an integer type or a
// message.Value. The int32 range invariant is enforced later by the codec,
// not here.
func coerceResult(out []reflect.Value) (message.Value, error) {
	var ret reflect.Value
	switch len(out) {
	case 0:
		return message.Int32(0), nil
	case 1:
		if out[0].Type() == errorType {
			return message.Int32(0), asError(out[0])
		}
		ret = out[0]
	case 2:
		if out[1].Type() != errorType {
			return nil, fmt.Errorf("callable returns (%v, %v), want (T, error)", out[0].Type(), out[1].Type())
		}
		if err := asError(out[1]); err != nil {
			return nil, err
		}
		ret = out[0]
	default:
		return nil, fmt.Errorf("callable returns %d values", len(out))
	}

	if ret.Type().Implements(valueType) {
		return ret.Interface().(message.Value), nil
	}
	if intKind(ret.Kind()) {
		return message.Int64(ret.Int()), nil
	}
	return nil, fmt.Errorf("callable returned %v, not an RPC-encodable result", ret.Type())
}

func asError(v reflect.Value) error {
	if v.IsNil() {
		return nil
	}
	return v.Interface().(error)
}

// trimPkg shortens a fully qualified function name to its last element.
func trimPkg(fn string) string {
	if i := strings.LastIndex(fn, "/"); i >= 0 {
		fn = fn[i+1:]
	}
	return fn
}
