package value

import (
	"fmt"
	"strings"
)

// DisassembleChunk renders every instruction in c as human-readable
// text, one line per instruction, headed by name. Used by the VM's
// trace-level logging and by tests that want to see what the compiler
// actually emitted.
func DisassembleChunk(c *Chunk, name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "== %s ==\n", name)
	for offset := 0; offset < len(c.Code); {
		var text string
		text, offset = DisassembleInstruction(c, offset)
		b.WriteString(text)
		b.WriteByte('\n')
	}
	return b.String()
}

// DisassembleInstruction renders the single instruction at offset and
// returns the offset of the next one. A line number is printed for the
// first instruction of each source line; later instructions on the same
// line show a '|' continuation marker.
func DisassembleInstruction(c *Chunk, offset int) (string, int) {
	var b strings.Builder
	fmt.Fprintf(&b, "%04d ", offset)
	line := c.GetLine(offset)
	if offset > 0 && line == c.GetLine(offset-1) {
		b.WriteString("   | ")
	} else {
		fmt.Fprintf(&b, "%4d ", line)
	}

	op := OpCode(c.Code[offset])
	switch op {
	case OpConstant, OpGetGlobal, OpDefineGlobal, OpSetGlobal,
		OpGetProperty, OpSetProperty, OpClass, OpMethod:
		return constantInstruction(&b, c, op, offset)

	case OpConstantLong:
		idx := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8 | int(c.Code[offset+3])<<16
		fmt.Fprintf(&b, "%-16s %4d '%s'", op, idx, c.Constants[idx])
		return b.String(), offset + 4

	case OpGetLocal, OpSetLocal, OpGetUpvalue, OpSetUpvalue, OpCall:
		fmt.Fprintf(&b, "%-16s %4d", op, c.Code[offset+1])
		return b.String(), offset + 2

	case OpInvoke:
		idx := c.Code[offset+1]
		argc := c.Code[offset+2]
		fmt.Fprintf(&b, "%-16s (%d args) %4d '%s'", op, argc, idx, c.Constants[idx])
		return b.String(), offset + 3

	case OpJump, OpJumpIfFalse:
		return jumpInstruction(&b, c, op, 1, offset)
	case OpLoop:
		return jumpInstruction(&b, c, op, -1, offset)

	case OpClosure:
		idx := c.Code[offset+1]
		fmt.Fprintf(&b, "%-16s %4d %s", op, idx, c.Constants[idx])
		next := offset + 2
		fn := c.Constants[idx].Obj.(*ObjFunction)
		for i := 0; i < fn.UpvalueCount; i++ {
			isLocal := c.Code[next]
			index := c.Code[next+1]
			kind := "upvalue"
			if isLocal != 0 {
				kind = "local"
			}
			fmt.Fprintf(&b, "\n%04d      |                     %s %d", next, kind, index)
			next += 2
		}
		return b.String(), next

	default:
		b.WriteString(op.String())
		return b.String(), offset + 1
	}
}

func constantInstruction(b *strings.Builder, c *Chunk, op OpCode, offset int) (string, int) {
	idx := c.Code[offset+1]
	fmt.Fprintf(b, "%-16s %4d '%s'", op, idx, c.Constants[idx])
	return b.String(), offset + 2
}

func jumpInstruction(b *strings.Builder, c *Chunk, op OpCode, sign int, offset int) (string, int) {
	jump := int(c.Code[offset+1]) | int(c.Code[offset+2])<<8
	fmt.Fprintf(b, "%-16s %4d -> %d", op, offset, offset+3+sign*jump)
	return b.String(), offset + 3
}
