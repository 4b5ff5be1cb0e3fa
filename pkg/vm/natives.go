package vm

import (
	"time"

	"loxvm/pkg/value"
)

// startTime anchors clock() to process start rather than the Unix
// epoch: scripts get a process-relative counter, not a wall-clock
// timestamp.
var startTime = time.Now()

// defineNatives installs the standard native functions into the globals
// table, each wrapped in a Closure-free ObjNative (natives are called
// directly, never through OpClosure).
func (vm *VM) defineNatives() {
	vm.defineNative("clock", -1, nativeClock)
	vm.defineNative("has_field", -1, nativeHasField)
	vm.defineNative("delete_field", -1, nativeDeleteField)
	vm.defineNative("err", -1, nativeErr)
}

// defineNative interns name, wraps fn as an ObjNative, and installs it
// as a global. arity is stored on the ObjNative but never read: the VM
// does not enforce it (see callNative) and the display form omits it.
func (vm *VM) defineNative(name string, arity int, fn value.NativeFn) {
	str := vm.heap.InternString(name)
	vm.push(value.FromObj(str))
	native := vm.heap.newNative(name, arity, fn)
	vm.push(value.FromObj(native))
	vm.globals().Set(vm.stack[vm.stackTop-2].Obj.(*value.ObjString), vm.stack[vm.stackTop-1])
	vm.pop()
	vm.pop()
}

func nativeClock(_ any, _ int, _ []value.Value) (value.Value, bool) {
	return value.Number(time.Since(startTime).Seconds()), true
}

// nativeHasField reports whether an instance has a field with the given
// name: has_field(instance, "name") -> bool. Used to test GC pinning and
// field-table semantics without needing a property-access expression.
func nativeHasField(vmAny any, argCount int, args []value.Value) (value.Value, bool) {
	if argCount != 2 {
		return errValue(vmAny, "has_field() takes an instance and a field name."), false
	}
	instance, ok := args[0].Obj.(*value.ObjInstance)
	if !ok || args[0].Kind != value.KindObj {
		return errValue(vmAny, "has_field() requires an instance."), false
	}
	name, ok := args[1].Obj.(*value.ObjString)
	if !ok || args[1].Kind != value.KindObj {
		return errValue(vmAny, "has_field() requires a string field name."), false
	}
	_, has := instance.Fields[name]
	return value.Bool(has), true
}

// nativeDeleteField removes a field from an instance: delete_field(inst,
// "name") -> bool (true if the field existed).
func nativeDeleteField(vmAny any, argCount int, args []value.Value) (value.Value, bool) {
	if argCount != 2 {
		return errValue(vmAny, "delete_field() takes an instance and a field name."), false
	}
	instance, ok := args[0].Obj.(*value.ObjInstance)
	if !ok || args[0].Kind != value.KindObj {
		return errValue(vmAny, "delete_field() requires an instance."), false
	}
	name, ok := args[1].Obj.(*value.ObjString)
	if !ok || args[1].Kind != value.KindObj {
		return errValue(vmAny, "delete_field() requires a string field name."), false
	}
	_, existed := instance.Fields[name]
	delete(instance.Fields, name)
	return value.Bool(existed), true
}

// nativeErr always fails, turning its single string argument into the
// runtime error message. Exists purely to exercise the native error path
// (a failing native's returned Value becomes the message) from script code.
func nativeErr(vmAny any, argCount int, args []value.Value) (value.Value, bool) {
	if argCount != 1 {
		return errValue(vmAny, "err() takes a single message."), false
	}
	return args[0], false
}

func errValue(vmAny any, msg string) value.Value {
	vm := vmAny.(*VM)
	return value.FromObj(vm.heap.InternString(msg))
}
