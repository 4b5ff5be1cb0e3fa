package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxvm/pkg/value"
)

func TestIsFalsey(t *testing.T) {
	cases := []struct {
		name    string
		v       value.Value
		falsey  bool
	}{
		{"nil", value.Nil(), true},
		{"false", value.Bool(false), true},
		{"true", value.Bool(true), false},
		{"zero", value.Number(0), false},
		{"empty string", value.FromObj(&value.ObjString{Chars: ""}), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.falsey, c.v.IsFalsey())
		})
	}
}

func TestEqual_DifferentVariantsAreNeverEqual(t *testing.T) {
	assert.False(t, value.Nil().Equal(value.Bool(false)))
	assert.False(t, value.Number(0).Equal(value.Bool(false)))
	assert.False(t, value.Number(1).Equal(value.FromObj(&value.ObjString{Chars: "1"})))
}

func TestEqual_ScalarsCompareByBits(t *testing.T) {
	assert.True(t, value.Nil().Equal(value.Nil()))
	assert.True(t, value.Bool(true).Equal(value.Bool(true)))
	assert.True(t, value.Number(3.5).Equal(value.Number(3.5)))
	assert.False(t, value.Number(3.5).Equal(value.Number(3.6)))
}

func TestEqual_ObjectsCompareByReferenceIdentity(t *testing.T) {
	a := &value.ObjString{Chars: "hi"}
	b := &value.ObjString{Chars: "hi"}
	// Without going through the intern table, two distinct allocations
	// with equal content are NOT value-equal: identity is all Equal sees.
	// Interning is what makes content equality coincide with this (see
	// the table package).
	assert.False(t, value.FromObj(a).Equal(value.FromObj(b)))
	assert.True(t, value.FromObj(a).Equal(value.FromObj(a)))
}

func TestString_Formatting(t *testing.T) {
	assert.Equal(t, "nil", value.Nil().String())
	assert.Equal(t, "true", value.Bool(true).String())
	assert.Equal(t, "false", value.Bool(false).String())
	assert.Equal(t, "1", value.Number(1).String())
	assert.Equal(t, "3.14", value.Number(3.14).String())
	// Six significant digits, with no trailing round-trip noise.
	assert.Equal(t, "0.333333", value.Number(1.0/3.0).String())
	assert.Equal(t, "0.3", value.Number(0.1+0.2).String())
	assert.Equal(t, "1e+07", value.Number(10000000).String())
	assert.Equal(t, "nan", value.Number(math.NaN()).String())
	assert.Equal(t, "inf", value.Number(math.Inf(1)).String())
	assert.Equal(t, "-inf", value.Number(math.Inf(-1)).String())
}

func TestString_ObjectDisplayForms(t *testing.T) {
	str := &value.ObjString{Chars: "abc"}
	assert.Equal(t, "abc", value.FromObj(str).String())

	script := &value.ObjFunction{}
	assert.Equal(t, "<script>", value.FromObj(script).String())

	named := &value.ObjFunction{Name: &value.ObjString{Chars: "add"}}
	assert.Equal(t, "<fn add>", value.FromObj(named).String())

	class := &value.ObjClass{Name: &value.ObjString{Chars: "Pie"}}
	assert.Equal(t, "Pie", value.FromObj(class).String())

	inst := &value.ObjInstance{Class: class}
	assert.Equal(t, "Pie instance", value.FromObj(inst).String())
}

func TestHashString_IsDeterministic(t *testing.T) {
	require.Equal(t, value.HashString("abc"), value.HashString("abc"))
	assert.NotEqual(t, value.HashString("abc"), value.HashString("abd"))
}

func TestTypeName(t *testing.T) {
	assert.Equal(t, "nil", value.TypeName(value.Nil()))
	assert.Equal(t, "bool", value.TypeName(value.Bool(true)))
	assert.Equal(t, "number", value.TypeName(value.Number(1)))
	assert.Equal(t, "string", value.TypeName(value.FromObj(&value.ObjString{})))
	assert.Equal(t, "class", value.TypeName(value.FromObj(&value.ObjClass{})))
}
