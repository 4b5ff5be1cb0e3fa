package vm

import (
	"fmt"

	"github.com/rs/zerolog"

	"loxvm/pkg/value"
)

// run executes bytecode starting from the current top call frame until a
// top-level OpReturn unwinds it or a runtime error occurs. This is the
// classic fetch/decode/execute switch, one case per OpCode, operating on
// a *CallFrame cached in a local so the hot path doesn't re-index
// vm.frames on every instruction.
func (vm *VM) run() InterpretResult {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readU16 := func() int {
		lo := int(readByte())
		hi := int(readByte())
		return lo | hi<<8
	}
	readConstant := func() value.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}

	trace := vm.log.GetLevel() == zerolog.TraceLevel

	for {
		if trace {
			text, _ := value.DisassembleInstruction(&frame.closure.Function.Chunk, frame.ip)
			vm.log.Trace().Int("frame", vm.frameCount-1).Msg(text)
		}
		op := value.OpCode(readByte())

		switch op {
		case value.OpConstant:
			vm.push(readConstant())

		case value.OpConstantLong:
			idx := int(readByte()) | int(readByte())<<8 | int(readByte())<<16
			vm.push(frame.closure.Function.Chunk.Constants[idx])

		case value.OpNil:
			vm.push(value.Nil())
		case value.OpTrue:
			vm.push(value.Bool(true))
		case value.OpFalse:
			vm.push(value.Bool(false))
		case value.OpPop:
			vm.pop()

		case value.OpGetLocal:
			slot := int(readByte())
			vm.push(vm.stack[frame.slotsBase+slot])
		case value.OpSetLocal:
			slot := int(readByte())
			vm.stack[frame.slotsBase+slot] = vm.peek(0)

		case value.OpGetGlobal:
			name := readConstant().AsString()
			v, ok := vm.globals().Get(name)
			if !ok {
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}
			vm.push(v)
		case value.OpDefineGlobal:
			name := readConstant().AsString()
			vm.globals().Set(name, vm.peek(0))
			vm.pop()
		case value.OpSetGlobal:
			name := readConstant().AsString()
			if vm.globals().Set(name, vm.peek(0)) {
				vm.globals().Delete(name)
				vm.runtimeError("Undefined variable '%s'.", name.Chars)
				return InterpretRuntimeError
			}

		case value.OpGetUpvalue:
			slot := int(readByte())
			u := frame.closure.Upvalues[slot]
			if u.IsClosed {
				vm.push(u.Closed)
			} else {
				vm.push(vm.stack[u.StackSlot])
			}
		case value.OpSetUpvalue:
			slot := int(readByte())
			u := frame.closure.Upvalues[slot]
			if u.IsClosed {
				u.Closed = vm.peek(0)
			} else {
				vm.stack[u.StackSlot] = vm.peek(0)
			}

		case value.OpGetProperty:
			if vm.peek(0).Kind != value.KindObj {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			instance, ok := vm.peek(0).Obj.(*value.ObjInstance)
			if !ok {
				vm.runtimeError("Only instances have properties.")
				return InterpretRuntimeError
			}
			name := readConstant().AsString()
			if v, ok := instance.Fields[name]; ok {
				vm.pop()
				vm.push(v)
				break
			}
			if !vm.bindMethod(instance.Class, name) {
				return InterpretRuntimeError
			}
		case value.OpSetProperty:
			if vm.peek(1).Kind != value.KindObj {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}
			instance, ok := vm.peek(1).Obj.(*value.ObjInstance)
			if !ok {
				vm.runtimeError("Only instances have fields.")
				return InterpretRuntimeError
			}
			name := readConstant().AsString()
			instance.Fields[name] = vm.peek(0)
			v := vm.pop()
			vm.pop()
			vm.push(v)

		case value.OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(value.Bool(a.Equal(b)))

		case value.OpGreater, value.OpLess, value.OpAdd, value.OpSubtract,
			value.OpMultiply, value.OpDivide:
			if !vm.binaryOp(op) {
				return InterpretRuntimeError
			}

		case value.OpNot:
			vm.push(value.Bool(vm.pop().IsFalsey()))

		case value.OpNegate:
			if vm.peek(0).Kind != value.KindNumber {
				vm.runtimeError("Operand must be a number.")
				return InterpretRuntimeError
			}
			vm.push(value.Number(-vm.pop().Number))

		case value.OpPrint:
			fmt.Fprintln(vm.out, vm.pop().String())

		case value.OpJump:
			offset := readU16()
			frame.ip += offset
		case value.OpJumpIfFalse:
			offset := readU16()
			if vm.peek(0).IsFalsey() {
				frame.ip += offset
			}
		case value.OpLoop:
			offset := readU16()
			frame.ip -= offset

		case value.OpCall:
			argCount := int(readByte())
			if !vm.callValue(vm.peek(argCount), argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case value.OpInvoke:
			method := readConstant().AsString()
			argCount := int(readByte())
			if !vm.invoke(method, argCount) {
				return InterpretRuntimeError
			}
			frame = &vm.frames[vm.frameCount-1]

		case value.OpClosure:
			fn := readConstant().Obj.(*value.ObjFunction)
			closure := vm.heap.newClosure(fn)
			vm.push(value.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := int(readByte())
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(frame.slotsBase + index)
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case value.OpCloseUpvalue:
			vm.closeUpvalues(vm.stackTop - 1)
			vm.pop()

		case value.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(frame.slotsBase)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop()
				return InterpretOK
			}
			vm.stackTop = frame.slotsBase
			vm.push(result)
			frame = &vm.frames[vm.frameCount-1]

		case value.OpClass:
			name := readConstant().AsString()
			vm.push(value.FromObj(vm.heap.newClass(name)))

		case value.OpMethod:
			name := readConstant().AsString()
			vm.defineMethod(name)

		default:
			vm.runtimeError("Unknown opcode %d.", op)
			return InterpretRuntimeError
		}
	}
}

// binaryOp implements the six two-number infix operators plus `+`'s
// string-concatenation overload. Operand type errors are reported
// through runtimeError and reported back to run() via the bool result.
func (vm *VM) binaryOp(op value.OpCode) bool {
	if op == value.OpAdd && vm.peek(0).Kind == value.KindObj && vm.peek(1).Kind == value.KindObj {
		bStr, bOK := vm.peek(0).Obj.(*value.ObjString)
		aStr, aOK := vm.peek(1).Obj.(*value.ObjString)
		if aOK && bOK {
			vm.pop()
			vm.pop()
			vm.push(value.FromObj(vm.heap.InternString(aStr.Chars + bStr.Chars)))
			return true
		}
	}

	if vm.peek(0).Kind != value.KindNumber || vm.peek(1).Kind != value.KindNumber {
		if op == value.OpAdd {
			vm.runtimeError("Operands must be two numbers or two strings.")
		} else {
			vm.runtimeError("Operands must be numbers.")
		}
		return false
	}
	b := vm.pop().Number
	a := vm.pop().Number
	switch op {
	case value.OpGreater:
		vm.push(value.Bool(a > b))
	case value.OpLess:
		vm.push(value.Bool(a < b))
	case value.OpAdd:
		vm.push(value.Number(a + b))
	case value.OpSubtract:
		vm.push(value.Number(a - b))
	case value.OpMultiply:
		vm.push(value.Number(a * b))
	case value.OpDivide:
		vm.push(value.Number(a / b))
	}
	return true
}
