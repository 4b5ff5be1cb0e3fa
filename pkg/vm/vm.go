// Package vm implements the stack-based bytecode interpreter: call
// frames, the value stack, closures and upvalues, class/method dispatch,
// and the heap/collector that backs all of it (see heap.go).
//
// Execution is the classic fetch/decode/execute switch over a flat
// Chunk of bytecode; runtime errors abort the current call chain with a
// traceback and surface as an InterpretResult the driver maps to an
// exit code.
package vm

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"loxvm/pkg/compiler"
	"loxvm/pkg/table"
	"loxvm/pkg/value"
)

const (
	framesMax = 64
	stackMax  = framesMax * 256
)

// InterpretResult reports how Interpret finished, three-way so a CLI
// driver can pick an exit code.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the base slot of its window into the shared
// value stack.
type CallFrame struct {
	closure   *value.ObjClosure
	ip        int
	slotsBase int
}

// VM is one interpreter instance: a value stack, a call-frame stack, the
// heap/collector, and the globals table. A VM is not safe for concurrent
// use -- the language has no concurrency model and a single VM is always
// driven by a single goroutine at a time.
type VM struct {
	stack    []value.Value
	stackTop int

	frames     []CallFrame
	frameCount int

	openUpvalues *value.ObjUpvalue

	heap *Heap

	out io.Writer
	log zerolog.Logger
}

// Option configures a VM at construction time.
type Option func(*VM)

// WithStressGC forces a collection before every single allocation, for
// exercising GC correctness under maximal pressure.
func WithStressGC(stress bool) Option {
	return func(vm *VM) { vm.heap.stressGC = stress }
}

// WithOutput overrides where `print` writes (defaults to os.Stdout).
func WithOutput(w io.Writer) Option {
	return func(vm *VM) { vm.out = w }
}

// WithLogger overrides the VM's structured logger (defaults to a
// disabled logger so embedding programs opt into VM diagnostics
// explicitly).
func WithLogger(log zerolog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithGCHeapBytes overrides the collector's initial threshold (defaults
// to 1 MiB; see heap.go's defaultNextGC).
func WithGCHeapBytes(bytes int) Option {
	return func(vm *VM) { vm.heap.nextGC = bytes }
}

// New constructs a VM with its globals table and collector, defines the
// standard native functions, and applies opts.
func New(opts ...Option) *VM {
	vm := &VM{
		stack:  make([]value.Value, stackMax),
		frames: make([]CallFrame, framesMax),
		out:    os.Stdout,
		log:    zerolog.Nop(),
	}
	vm.heap = newHeap(vm, vm.log)
	for _, opt := range opts {
		opt(vm)
	}
	vm.heap.log = vm.log
	vm.defineNatives()
	return vm
}

func (vm *VM) globals() *table.Table { return vm.heap.globals }

// Interpret compiles source and, on success, runs it to completion.
func (vm *VM) Interpret(source string) InterpretResult {
	fn, ok := compiler.Compile(source, vm.heap)
	if !ok {
		return InterpretCompileError
	}

	vm.push(value.FromObj(fn))
	closure := vm.heap.newClosure(fn)
	vm.pop()
	vm.push(value.FromObj(closure))
	vm.call(closure, 0)

	return vm.run()
}

// ---- stack primitives ----

func (vm *VM) push(v value.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) pop() value.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.stackTop-1-distance]
}

func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// ---- calling ----

func (vm *VM) callValue(callee value.Value, argCount int) bool {
	if callee.Kind != value.KindObj {
		vm.runtimeError("Can only call functions and classes.")
		return false
	}
	switch o := callee.Obj.(type) {
	case *value.ObjClosure:
		return vm.call(o, argCount)
	case *value.ObjNative:
		return vm.callNative(o, argCount)
	case *value.ObjClass:
		instance := vm.heap.newInstance(o)
		vm.stack[vm.stackTop-argCount-1] = value.FromObj(instance)
		if initializer, ok := o.Methods[vm.heap.initString]; ok {
			return vm.call(initializer, argCount)
		}
		if argCount != 0 {
			vm.runtimeError("Expected 0 arguments but got %d.", argCount)
			return false
		}
		return true
	case *value.ObjBoundMethod:
		vm.stack[vm.stackTop-argCount-1] = o.Receiver
		return vm.call(o.Method, argCount)
	default:
		vm.runtimeError("Can only call functions and classes.")
		return false
	}
}

// callNative invokes a native function. Native arity is never enforced
// by the VM -- the native itself decides what to do with argCount. On success the native's result replaces the callee's own
// stack slot; on failure the native's returned Value is used verbatim as
// the runtime error message (the native is expected to make it a
// String).
func (vm *VM) callNative(native *value.ObjNative, argCount int) bool {
	args := vm.stack[vm.stackTop-argCount : vm.stackTop]
	result, ok := native.Fn(vm, argCount, args)
	if !ok {
		vm.runtimeError("%s", result.String())
		return false
	}
	vm.stackTop -= argCount + 1
	vm.push(result)
	return true
}

func (vm *VM) call(closure *value.ObjClosure, argCount int) bool {
	if argCount != closure.Function.Arity {
		vm.runtimeError("Expected %d arguments but got %d.", closure.Function.Arity, argCount)
		return false
	}
	if vm.frameCount == framesMax {
		vm.runtimeError("Stack overflow.")
		return false
	}
	frame := &vm.frames[vm.frameCount]
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	vm.frameCount++
	return true
}

func (vm *VM) invoke(name *value.ObjString, argCount int) bool {
	receiver := vm.peek(argCount)
	if receiver.Kind != value.KindObj {
		vm.runtimeError("Only instances have methods.")
		return false
	}
	instance, ok := receiver.Obj.(*value.ObjInstance)
	if !ok {
		vm.runtimeError("Only instances have methods.")
		return false
	}
	if field, ok := instance.Fields[name]; ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *value.ObjClass, name *value.ObjString, argCount int) bool {
	method, ok := class.Methods[name]
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	return vm.call(method, argCount)
}

func (vm *VM) bindMethod(class *value.ObjClass, name *value.ObjString) bool {
	method, ok := class.Methods[name]
	if !ok {
		vm.runtimeError("Undefined property '%s'.", name.Chars)
		return false
	}
	bound := vm.heap.newBoundMethod(vm.peek(0), method)
	vm.pop()
	vm.push(value.FromObj(bound))
	return true
}

// ---- upvalues ----

// captureUpvalue returns the open upvalue observing absolute stack slot,
// reusing an existing one if the open-upvalues list (kept sorted by
// descending slot) already has it.
func (vm *VM) captureUpvalue(slot int) *value.ObjUpvalue {
	var prev *value.ObjUpvalue
	u := vm.openUpvalues
	for u != nil && u.StackSlot > slot {
		prev = u
		u = u.Next
	}
	if u != nil && u.StackSlot == slot {
		return u
	}

	created := vm.heap.newUpvalue(slot)
	created.Next = u
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.Next = created
	}
	return created
}

// closeUpvalues closes every open upvalue observing a slot at or above
// last, copying the stack value into the upvalue's own Closed cell.
func (vm *VM) closeUpvalues(last int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackSlot >= last {
		u := vm.openUpvalues
		u.Closed = vm.stack[u.StackSlot]
		u.IsClosed = true
		vm.openUpvalues = u.Next
	}
}

func (vm *VM) defineMethod(name *value.ObjString) {
	method := vm.peek(0).Obj.(*value.ObjClosure)
	class := vm.peek(1).Obj.(*value.ObjClass)
	class.Methods[name] = method
	vm.pop()
}

// ---- errors ----

// runtimeError prints a formatted message followed by a call-stack
// traceback (innermost frame first) to stderr, then resets the VM to a
// clean stack.
func (vm *VM) runtimeError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)

	for i := vm.frameCount - 1; i >= 0; i-- {
		frame := &vm.frames[i]
		fn := frame.closure.Function
		line := fn.Chunk.GetLine(frame.ip - 1)
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Chars + "()"
		}
		fmt.Fprintf(os.Stderr, "[line %d] in %s\n", line, name)
	}

	vm.resetStack()
}
