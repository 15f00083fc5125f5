// Package codec encodes and decodes RPC values over the frame protocol.
//
// Values are self-describing: one tag byte selects the variant, then the
// payload follows, recursing for the composite variants. Argument lists are
// a run of values terminated by the zero-tag sentinel; the sentinel is an
// end marker only and never legal inside a composite value.
package codec

import (
	"errors"
	"fmt"
	"math"

	"corelink/message"
	"corelink/protocol"
)

// Value tag bytes.
const (
	TagSentinel byte = 0x00
	TagTuple    byte = 't'
	TagNone     byte = 'n'
	TagBool     byte = 'b'
	TagInt32    byte = 'i'
	TagInt64    byte = 'I'
	TagFloat64  byte = 'f'
	TagRational byte = 'F'
	TagString   byte = 's'
	TagList     byte = 'l'
	TagRange    byte = 'r'
	TagObject   byte = 'o'
)

var (
	// ErrUnknownTag is returned when a value carries a tag byte outside
	// the known set. This is a hard protocol violation, never skipped.
	ErrUnknownTag = errors.New("unknown RPC value tag")

	// ErrUnknownObject is returned when an object reference index has no
	// entry in the supplied RPC map.
	ErrUnknownObject = errors.New("unknown object reference")

	// ErrBadResult is returned when an RPC result is not representable as
	// a signed 32-bit integer in (−2³¹, 2³¹−1].
	ErrBadResult = errors.New("an RPC must return an int(width=32)")

	// ErrBadCount is returned when a wire-supplied element count is
	// negative or larger than the message body could possibly hold. The
	// count is validated before allocating.
	ErrBadCount = errors.New("implausible element count")

	// errNestedSentinel: the sentinel terminates argument lists only.
	errNestedSentinel = errors.New("sentinel tag inside a value")
)

// ObjectResolver resolves object-reference indices against the RPC map
// supplied by the caller of the serve loop.
type ObjectResolver interface {
	ResolveObject(index int32) (any, bool)
}

// Decoder reads RPC values from a frame reader, resolving object
// references through the given resolver.
type Decoder struct {
	r       *protocol.Reader
	objects ObjectResolver
}

// NewDecoder returns a Decoder on r. objects may be nil if the stream is
// known to carry no object references.
func NewDecoder(r *protocol.Reader, objects ObjectResolver) *Decoder {
	return &Decoder{r: r, objects: objects}
}

// DecodeValue decodes one value. A sentinel at this position is a protocol
// violation; use DecodeArgs to scan a sentinel-terminated argument list.
func (d *Decoder) DecodeValue() (message.Value, error) {
	v, sentinel, err := d.decode()
	if err != nil {
		return nil, err
	}
	if sentinel {
		return nil, errNestedSentinel
	}
	return v, nil
}

// DecodeArgs decodes values until the sentinel and returns them in order,
// sentinel excluded.
func (d *Decoder) DecodeArgs() ([]message.Value, error) {
	var args []message.Value
	for {
		v, sentinel, err := d.decode()
		if err != nil {
			return nil, err
		}
		if sentinel {
			return args, nil
		}
		args = append(args, v)
	}
}

func (d *Decoder) decode() (message.Value, bool, error) {
	tag, err := d.r.ReadInt8()
	if err != nil {
		return nil, false, err
	}

	switch tag {
	case TagSentinel:
		return nil, true, nil

	case TagTuple:
		arity, err := d.r.ReadInt8()
		if err != nil {
			return nil, false, err
		}
		tuple := make(message.Tuple, arity)
		for i := range tuple {
			if tuple[i], err = d.DecodeValue(); err != nil {
				return nil, false, err
			}
		}
		return tuple, false, nil

	case TagNone:
		return message.None{}, false, nil

	case TagBool:
		b, err := d.r.ReadInt8()
		if err != nil {
			return nil, false, err
		}
		return message.Bool(b != 0), false, nil

	case TagInt32:
		v, err := d.r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		return message.Int32(v), false, nil

	case TagInt64:
		v, err := d.r.ReadInt64()
		if err != nil {
			return nil, false, err
		}
		return message.Int64(v), false, nil

	case TagFloat64:
		v, err := d.r.ReadFloat64()
		if err != nil {
			return nil, false, err
		}
		return message.Float64(v), false, nil

	case TagRational:
		num, err := d.r.ReadInt64()
		if err != nil {
			return nil, false, err
		}
		den, err := d.r.ReadInt64()
		if err != nil {
			return nil, false, err
		}
		// kept as received, no reduction
		return message.Rational{Num: num, Den: den}, false, nil

	case TagString:
		s, err := d.r.ReadString()
		if err != nil {
			return nil, false, err
		}
		return message.Str(s), false, nil

	case TagList:
		n, err := d.r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		// Every element occupies at least its tag byte.
		if n < 0 || int(n) > d.r.Remaining() {
			return nil, false, fmt.Errorf("%w: list of %d in %d remaining bytes", ErrBadCount, n, d.r.Remaining())
		}
		list := make(message.List, n)
		for i := range list {
			if list[i], err = d.DecodeValue(); err != nil {
				return nil, false, err
			}
		}
		return list, false, nil

	case TagRange:
		var rng message.Range
		if rng.Lower, err = d.DecodeValue(); err != nil {
			return nil, false, err
		}
		if rng.Upper, err = d.DecodeValue(); err != nil {
			return nil, false, err
		}
		if rng.Step, err = d.DecodeValue(); err != nil {
			return nil, false, err
		}
		return rng, false, nil

	case TagObject:
		index, err := d.r.ReadInt32()
		if err != nil {
			return nil, false, err
		}
		if d.objects == nil {
			return nil, false, fmt.Errorf("%w: %d (no RPC map)", ErrUnknownObject, index)
		}
		obj, ok := d.objects.ResolveObject(index)
		if !ok {
			return nil, false, fmt.Errorf("%w: %d", ErrUnknownObject, index)
		}
		return message.ObjectRef{Index: index, Object: obj}, false, nil

	default:
		return nil, false, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// Encoder buffers RPC values into a frame writer.
type Encoder struct {
	w *protocol.Writer
}

// NewEncoder returns an Encoder on w.
func NewEncoder(w *protocol.Writer) *Encoder {
	return &Encoder{w: w}
}

// EncodeValue buffers one tagged value, recursing into composites. It is
// the exact dual of Decoder.DecodeValue.
func (e *Encoder) EncodeValue(v message.Value) error {
	switch v := v.(type) {
	case message.None:
		e.w.WriteInt8(TagNone)

	case message.Bool:
		e.w.WriteInt8(TagBool)
		if v {
			e.w.WriteInt8(1)
		} else {
			e.w.WriteInt8(0)
		}

	case message.Int32:
		e.w.WriteInt8(TagInt32)
		e.w.WriteInt32(int32(v))

	case message.Int64:
		e.w.WriteInt8(TagInt64)
		e.w.WriteInt64(int64(v))

	case message.Float64:
		e.w.WriteInt8(TagFloat64)
		e.w.WriteFloat64(float64(v))

	case message.Rational:
		e.w.WriteInt8(TagRational)
		e.w.WriteInt64(v.Num)
		e.w.WriteInt64(v.Den)

	case message.Str:
		e.w.WriteInt8(TagString)
		e.w.WriteString(string(v))

	case message.Tuple:
		if len(v) > math.MaxUint8 {
			return fmt.Errorf("tuple arity %d exceeds wire limit", len(v))
		}
		e.w.WriteInt8(TagTuple)
		e.w.WriteInt8(uint8(len(v)))
		for _, elem := range v {
			if err := e.EncodeValue(elem); err != nil {
				return err
			}
		}

	case message.List:
		e.w.WriteInt8(TagList)
		e.w.WriteInt32(int32(len(v)))
		for _, elem := range v {
			if err := e.EncodeValue(elem); err != nil {
				return err
			}
		}

	case message.Range:
		e.w.WriteInt8(TagRange)
		if err := e.EncodeValue(v.Lower); err != nil {
			return err
		}
		if err := e.EncodeValue(v.Upper); err != nil {
			return err
		}
		if err := e.EncodeValue(v.Step); err != nil {
			return err
		}

	case message.ObjectRef:
		e.w.WriteInt8(TagObject)
		e.w.WriteInt32(v.Index)

	default:
		return fmt.Errorf("%w: %T", ErrUnknownTag, v)
	}
	return nil
}

// EncodeSentinel buffers the end-of-arguments marker.
func (e *Encoder) EncodeSentinel() {
	e.w.WriteInt8(TagSentinel)
}

// EncodeResult buffers an RPC service result. The protocol allows exactly
// one return shape: a signed 32-bit integer in (−2³¹, 2³¹−1], written bare
// with no tag. Anything else is a contract violation of the callable and
// reported, never truncated.
func (e *Encoder) EncodeResult(v message.Value) error {
	n, err := resultInt32(v)
	if err != nil {
		return err
	}
	e.w.WriteInt32(n)
	return nil
}

func resultInt32(v message.Value) (int32, error) {
	var wide int64
	switch v := v.(type) {
	case message.Int32:
		wide = int64(v)
	case message.Int64:
		wide = int64(v)
	default:
		return 0, fmt.Errorf("%w: got %T", ErrBadResult, v)
	}
	// lower bound exclusive: −2³¹ itself is not representable
	if wide <= math.MinInt32 || wide > math.MaxInt32 {
		return 0, fmt.Errorf("%w: %d out of range", ErrBadResult, wide)
	}
	return int32(wide), nil
}
