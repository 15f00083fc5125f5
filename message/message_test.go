package message

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValueString(t *testing.T) {
	cases := []struct {
		value Value
		want  string
	}{
		{None{}, "None"},
		{Bool(true), "true"},
		{Int32(-3), "-3"},
		{Int64(1 << 40), "1099511627776"},
		{Rational{Num: 6, Den: 4}, "6/4"},
		{Str("a"), `"a"`},
		{Tuple{Int32(1), Str("x")}, `(1, "x")`},
		{List{Int64(1), Int64(2)}, "[1, 2]"},
		{Range{Lower: Int32(0), Upper: Int32(8), Step: Int32(2)}, "range(0, 8, 2)"},
		{ObjectRef{Index: 4}, "object(4)"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.value.String())
	}
}

func TestRemoteExceptionError(t *testing.T) {
	exn := &RemoteException{
		Name:     "RTIOUnderflow",
		Message:  "event submitted too late",
		Filename: "exp.py",
		Line:     12,
		Function: "pulse",
	}
	assert.Equal(t, "RTIOUnderflow: event submitted too late (exp.py:12, in pulse)", exn.Error())

	bare := &RemoteException{Name: "ValueError", Message: "nope"}
	assert.Equal(t, "ValueError: nope", bare.Error())
}
