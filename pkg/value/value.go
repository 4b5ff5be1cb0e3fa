// Package value defines the language's tagged Value union and the eight
// heap Object variants it can reference, plus arithmetic, equality, and
// display formatting for them.
//
// Every heap object embeds Header, which carries the GC mark bit; the
// collector walks them through the vm package's Heap allocation list
// during sweep. Objects are closed, tagged Go structs switched on by a
// Kind byte instead of interfaces with dozens of tiny implementations.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind tags a Value's variant. There are exactly four: Nil, Bool, Number,
// and Obj (a reference to one of the eight heap Object kinds).
type Kind byte

const (
	KindNil Kind = iota
	KindBool
	KindNumber
	KindObj
)

// Value is a sum type: nil, bool, number, or a heap-object reference.
// Scalars are compared by variant+bits; Obj compares by reference except
// for strings, whose interning makes reference identity coincide with
// content equality (see Table.FindString in the table package).
type Value struct {
	Kind   Kind
	Bool   bool
	Number float64
	Obj    Obj
}

func Nil() Value             { return Value{Kind: KindNil} }
func Bool(b bool) Value      { return Value{Kind: KindBool, Bool: b} }
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }
func FromObj(o Obj) Value    { return Value{Kind: KindObj, Obj: o} }

// IsFalsey implements the language's truthiness rule: only nil and false
// are falsy, everything else -- including 0 and "" -- is truthy.
func (v Value) IsFalsey() bool {
	return v.Kind == KindNil || (v.Kind == KindBool && !v.Bool)
}

// Equal implements == semantics: different variants are never equal;
// otherwise scalars compare by bits and objects by reference identity.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindNil:
		return true
	case KindBool:
		return v.Bool == o.Bool
	case KindNumber:
		return v.Number == o.Number
	case KindObj:
		return v.Obj == o.Obj
	}
	return false
}

// String formats a Value the way the VM's `print` statement and the
// REPL do: nil, true/false, %g-style numbers, and each Object's own
// display form.
func (v Value) String() string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNumber:
		return formatNumber(v.Number)
	case KindObj:
		return v.Obj.display()
	}
	return "<invalid value>"
}

func formatNumber(n float64) string {
	if math.IsInf(n, 1) {
		return "inf"
	}
	if math.IsInf(n, -1) {
		return "-inf"
	}
	if math.IsNaN(n) {
		return "nan"
	}
	// Six significant digits, the %g default.
	return strconv.FormatFloat(n, 'g', 6, 64)
}

// ObjKind tags the eight heap Object variants.
type ObjKind byte

const (
	ObjStringKind ObjKind = iota
	ObjFunctionKind
	ObjNativeKind
	ObjClosureKind
	ObjUpvalueKind
	ObjClassKind
	ObjInstanceKind
	ObjBoundMethodKind
)

// Obj is implemented by every heap object variant. It is intentionally
// small: the GC and the VM both switch on Kind() rather than relying on
// virtual dispatch, since the variant set is closed.
type Obj interface {
	Kind() ObjKind
	display() string
	marked() bool
	setMarked(bool)
}

// Header is embedded by every Object variant. Mark is the GC's tri-color
// bit (black/white only -- this collector has no gray objects at rest,
// grayness is transient via the gray stack); heap objects never carry
// their own "next" pointer because the owning Heap keeps the allocation
// list as a slice (see vm.Heap) rather than an intrusive linked list.
type Header struct {
	Mark bool
}

func (h *Header) marked() bool     { return h.Mark }
func (h *Header) setMarked(m bool) { h.Mark = m }

// ObjString is an immutable, interned byte sequence. At most one live
// ObjString exists per distinct byte sequence (see table.Table.FindString).
type ObjString struct {
	Header
	Chars string
	Hash  uint32
}

func (*ObjString) Kind() ObjKind     { return ObjStringKind }
func (s *ObjString) display() string { return s.Chars }

// HashString computes the 32-bit FNV-1a hash the intern table keys on.
func HashString(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ObjFunction is an immutable, post-compilation function body: its
// arity, upvalue count, compiled chunk, and optional name. Plain
// Functions are never called directly except for the implicit top-level
// script; everything else is called through a Closure.
type ObjFunction struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *ObjString // nil for the top-level script
}

func (*ObjFunction) Kind() ObjKind { return ObjFunctionKind }
func (f *ObjFunction) display() string {
	if f.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", f.Name.Chars)
}

// NativeFn is a function pointer exposed to the VM: given the VM itself
// (as `any` to avoid an import cycle with the vm package), argc, and the
// argument slots, it returns its result (or, on failure, the error
// message) together with a success flag. The VM puts a successful result
// in the callee's stack slot.
type NativeFn func(vm any, argCount int, args []Value) (Value, bool)

// ObjNative wraps a host-language function callable from the script.
type ObjNative struct {
	Header
	Arity int
	Name  string
	Fn    NativeFn
}

func (*ObjNative) Kind() ObjKind     { return ObjNativeKind }
func (n *ObjNative) display() string { return fmt.Sprintf("<native fn %s>", n.Name) }

// ObjUpvalue mediates access to a variable captured by a closure. It
// starts Open (StackSlot indexes the live VM stack) and becomes Closed
// exactly once, at which point the variable lives in the upvalue's own
// Closed cell. Next threads the VM's open-upvalue list,
// which is kept sorted by descending stack slot.
type ObjUpvalue struct {
	Header
	Closed   Value
	IsClosed bool
	// StackSlot is meaningful only while IsClosed is false: the absolute
	// stack index this upvalue currently observes.
	StackSlot int
	Next      *ObjUpvalue
}

func (*ObjUpvalue) Kind() ObjKind   { return ObjUpvalueKind }
func (*ObjUpvalue) display() string { return "upvalue" }

// ObjClosure pairs a Function with the Upvalues it captured at creation
// time. Closures are the only callable form of user-defined code.
type ObjClosure struct {
	Header
	Function *ObjFunction
	Upvalues []*ObjUpvalue
}

func (*ObjClosure) Kind() ObjKind { return ObjClosureKind }
func (c *ObjClosure) display() string {
	if c.Function.Name == nil {
		return "<script>"
	}
	return fmt.Sprintf("<fn %s>", c.Function.Name.Chars)
}

// ObjClass is a method table keyed by interned method name. The language
// has no inheritance (Non-goal), so a Class carries no superclass link.
type ObjClass struct {
	Header
	Name    *ObjString
	Methods map[*ObjString]*ObjClosure
}

func (*ObjClass) Kind() ObjKind     { return ObjClassKind }
func (c *ObjClass) display() string { return c.Name.Chars }

// ObjInstance is a Class reference plus a dynamic field dictionary.
// Fields shadow methods of the same name on property access.
type ObjInstance struct {
	Header
	Class  *ObjClass
	Fields map[*ObjString]Value
}

func (*ObjInstance) Kind() ObjKind     { return ObjInstanceKind }
func (i *ObjInstance) display() string { return fmt.Sprintf("%s instance", i.Class.Name.Chars) }

// ObjBoundMethod pairs a receiver with the Closure resolved for a
// property access, created lazily whenever `obj.method` is evaluated
// without an immediate call.
type ObjBoundMethod struct {
	Header
	Receiver Value
	Method   *ObjClosure
}

func (*ObjBoundMethod) Kind() ObjKind { return ObjBoundMethodKind }
func (b *ObjBoundMethod) display() string {
	return b.Method.display()
}

// TypeName reports a value's variant name for diagnostics; kept separate from String() so
// log lines can name a value's variant without invoking its own display
// form (useful when the value is, say, an unprintable cyclic structure).
func TypeName(v Value) string {
	switch v.Kind {
	case KindNil:
		return "nil"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindObj:
		switch v.Obj.Kind() {
		case ObjStringKind:
			return "string"
		case ObjFunctionKind:
			return "function"
		case ObjNativeKind:
			return "native"
		case ObjClosureKind:
			return "closure"
		case ObjUpvalueKind:
			return "upvalue"
		case ObjClassKind:
			return "class"
		case ObjInstanceKind:
			return "instance"
		case ObjBoundMethodKind:
			return "bound method"
		}
	}
	return "unknown"
}

// AsString is a convenience accessor used throughout the compiler and VM
// for the common case of a Value known to hold a string.
func (v Value) AsString() *ObjString {
	return v.Obj.(*ObjString)
}

// Join concatenates Values for diagnostics (e.g. stack dumps).
func Join(vs []Value, sep string) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return strings.Join(parts, sep)
}
