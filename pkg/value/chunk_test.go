package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loxvm/pkg/value"
)

func TestChunk_WriteConstant_ShortForm(t *testing.T) {
	c := &value.Chunk{}
	c.WriteConstant(value.Number(42), 1)
	require.Len(t, c.Code, 2)
	assert.Equal(t, byte(value.OpConstant), c.Code[0])
	assert.Equal(t, byte(0), c.Code[1])
	assert.Equal(t, 42.0, c.Constants[0].Number)
}

func TestChunk_WriteConstant_LongFormAbove255(t *testing.T) {
	c := &value.Chunk{}
	for i := 0; i < 256; i++ {
		c.AddConstant(value.Number(float64(i)))
	}
	c.WriteConstant(value.Number(999), 1)
	require.Len(t, c.Code, 4)
	assert.Equal(t, byte(value.OpConstantLong), c.Code[0])
	idx := int(c.Code[1]) | int(c.Code[2])<<8 | int(c.Code[3])<<16
	assert.Equal(t, 256, idx)
	assert.Equal(t, 999.0, c.Constants[idx].Number)
}

func TestChunk_GetLine_RunLengthCompression(t *testing.T) {
	c := &value.Chunk{}
	c.WriteByte(0, 1) // offset 0, line 1
	c.WriteByte(1, 1) // offset 1, line 1 (no new run)
	c.WriteByte(2, 2) // offset 2, line 2
	c.WriteByte(3, 2) // offset 3, line 2
	c.WriteByte(4, 5) // offset 4, line 5 (lines may jump)

	assert.Equal(t, 1, c.GetLine(0))
	assert.Equal(t, 1, c.GetLine(1))
	assert.Equal(t, 2, c.GetLine(2))
	assert.Equal(t, 2, c.GetLine(3))
	assert.Equal(t, 5, c.GetLine(4))
}

func TestChunk_AddConstant_NoDeduplication(t *testing.T) {
	c := &value.Chunk{}
	i1 := c.AddConstant(value.Number(1))
	i2 := c.AddConstant(value.Number(1))
	assert.NotEqual(t, i1, i2)
	assert.Len(t, c.Constants, 2)
}

func TestOpCode_String(t *testing.T) {
	assert.Equal(t, "OP_RETURN", value.OpReturn.String())
	assert.Equal(t, "OP_UNKNOWN", value.OpCode(255).String())
}
