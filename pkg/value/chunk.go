package value

import "sort"

// OpCode is a single bytecode instruction tag. Chunks are plain byte
// buffers; OpCode values and their operands are written out manually by
// the compiler rather than via a generated Instruction struct, and the
// VM dispatches on the dense enum with a single switch.
type OpCode byte

const (
	OpConstant     OpCode = iota // u8 index
	OpConstantLong               // u24 little-endian index
	OpNil
	OpTrue
	OpFalse
	OpPop
	OpGetLocal    // u8 slot
	OpSetLocal    // u8 slot
	OpGetGlobal   // u8 name-const-idx
	OpDefineGlobal
	OpSetGlobal
	OpGetUpvalue // u8 slot
	OpSetUpvalue
	OpGetProperty // u8 name-const-idx
	OpSetProperty
	OpEqual
	OpGreater
	OpLess
	OpAdd
	OpSubtract
	OpMultiply
	OpDivide
	OpNot
	OpNegate
	OpPrint
	OpJump         // u16 forward offset
	OpJumpIfFalse  // u16 forward offset
	OpLoop         // u16 back offset
	OpCall         // u8 argc
	OpInvoke       // u8 name-const-idx, u8 argc
	OpClosure      // u8 fn-const-idx, then per-upvalue (u8 isLocal, u8 index)
	OpCloseUpvalue
	OpReturn
	OpClass   // u8 name-const-idx
	OpMethod  // u8 name-const-idx
)

var opNames = [...]string{
	"OP_CONSTANT", "OP_CONSTANT_LONG", "OP_NIL", "OP_TRUE", "OP_FALSE",
	"OP_POP", "OP_GET_LOCAL", "OP_SET_LOCAL", "OP_GET_GLOBAL",
	"OP_DEFINE_GLOBAL", "OP_SET_GLOBAL", "OP_GET_UPVALUE", "OP_SET_UPVALUE",
	"OP_GET_PROPERTY", "OP_SET_PROPERTY", "OP_EQUAL", "OP_GREATER",
	"OP_LESS", "OP_ADD", "OP_SUBTRACT", "OP_MULTIPLY", "OP_DIVIDE",
	"OP_NOT", "OP_NEGATE", "OP_PRINT", "OP_JUMP", "OP_JUMP_IF_FALSE",
	"OP_LOOP", "OP_CALL", "OP_INVOKE", "OP_CLOSURE", "OP_CLOSE_UPVALUE",
	"OP_RETURN", "OP_CLASS", "OP_METHOD",
}

func (op OpCode) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "OP_UNKNOWN"
}

// lineRun is one entry of the run-length-compressed line table: the
// source line for every byte at StartOffset and after, until the next
// run's StartOffset.
type lineRun struct {
	StartOffset int
	Line        int
}

// Chunk is a growable bytecode buffer plus its constant pool and a
// compressed source-line table. Chunk is owned by exactly one
// ObjFunction once compilation finishes.
type Chunk struct {
	Code      []byte
	Constants []Value
	lines     []lineRun
}

// WriteByte appends one byte at `line`, extending the line table only
// when the line changes from the previous write (run-length
// compression: an entry begins at the first byte emitted on a new
// source line).
func (c *Chunk) WriteByte(b byte, line int) {
	c.Code = append(c.Code, b)
	if len(c.lines) == 0 || c.lines[len(c.lines)-1].Line != line {
		c.lines = append(c.lines, lineRun{StartOffset: len(c.Code) - 1, Line: line})
	}
}

// AddConstant appends v to the constant pool without deduplication and
// returns its index.
func (c *Chunk) AddConstant(v Value) int {
	c.Constants = append(c.Constants, v)
	return len(c.Constants) - 1
}

// WriteConstant emits OpConstant (u8 index) when the pool has fewer than
// 256 entries, else OpConstantLong (u24 little-endian index).
func (c *Chunk) WriteConstant(v Value, line int) {
	idx := c.AddConstant(v)
	if idx < 256 {
		c.WriteByte(byte(OpConstant), line)
		c.WriteByte(byte(idx), line)
		return
	}
	c.WriteByte(byte(OpConstantLong), line)
	c.WriteByte(byte(idx&0xff), line)
	c.WriteByte(byte((idx>>8)&0xff), line)
	c.WriteByte(byte((idx>>16)&0xff), line)
}

// GetLine binary-searches the line table for the line of the statement
// whose first emitted byte has offset <= the given offset, with no
// later run starting at or before it either.
func (c *Chunk) GetLine(offset int) int {
	i := sort.Search(len(c.lines), func(i int) bool {
		return c.lines[i].StartOffset > offset
	})
	if i == 0 {
		return 0
	}
	return c.lines[i-1].Line
}
