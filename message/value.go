// Package message defines the data types carried by the kernel protocol:
// the recursive RPC value union exchanged during remote procedure calls and
// the exception record the device reports when a kernel faults.
package message

import (
	"fmt"
	"strings"
)

// Value is one RPC value. It is a closed sum over exactly the variants the
// wire protocol can carry; the codec performs a total switch over it and
// over the tag bytes, so an unknown variant or tag is always an explicit
// failure, never a silent coercion.
type Value interface {
	fmt.Stringer
	isValue()
}

// None is the null value.
type None struct{}

// Bool is a boolean, a single 0/1 byte on the wire.
type Bool bool

// Int32 is a signed 32-bit integer, the only legal RPC result type.
type Int32 int32

// Int64 is a signed 64-bit integer.
type Int64 int64

// Float64 is an IEEE 754 double.
type Float64 float64

// Rational is a numerator/denominator pair. It is transmitted and kept
// exactly as received: never reduced, the denominator never validated.
type Rational struct {
	Num int64
	Den int64
}

// Str is a UTF-8 string.
type Str string

// Tuple is a fixed-arity sequence of values.
type Tuple []Value

// List is a variable-length sequence of values.
type List []Value

// Range is a lower/upper/step triple. The bounds are themselves values,
// normally integers.
type Range struct {
	Lower Value
	Upper Value
	Step  Value
}

// ObjectRef is a reference into the caller-supplied RPC map. Index is what
// travels on the wire; Object is the host-side object the index resolved to
// at decode time.
type ObjectRef struct {
	Index  int32
	Object any
}

func (None) isValue()      {}
func (Bool) isValue()      {}
func (Int32) isValue()     {}
func (Int64) isValue()     {}
func (Float64) isValue()   {}
func (Rational) isValue()  {}
func (Str) isValue()       {}
func (Tuple) isValue()     {}
func (List) isValue()      {}
func (Range) isValue()     {}
func (ObjectRef) isValue() {}

func (None) String() string       { return "None" }
func (v Bool) String() string     { return fmt.Sprintf("%t", bool(v)) }
func (v Int32) String() string    { return fmt.Sprintf("%d", int32(v)) }
func (v Int64) String() string    { return fmt.Sprintf("%d", int64(v)) }
func (v Float64) String() string  { return fmt.Sprintf("%g", float64(v)) }
func (v Rational) String() string { return fmt.Sprintf("%d/%d", v.Num, v.Den) }
func (v Str) String() string      { return fmt.Sprintf("%q", string(v)) }

func (v Tuple) String() string { return joinValues("(", ")", v) }
func (v List) String() string  { return joinValues("[", "]", v) }

func (v Range) String() string {
	return fmt.Sprintf("range(%v, %v, %v)", v.Lower, v.Upper, v.Step)
}

func (v ObjectRef) String() string {
	return fmt.Sprintf("object(%d)", v.Index)
}

func joinValues(open, closing string, vs []Value) string {
	var b strings.Builder
	b.WriteString(open)
	for i, v := range vs {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(v.String())
	}
	b.WriteString(closing)
	return b.String()
}
