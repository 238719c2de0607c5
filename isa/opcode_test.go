package isa

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookup(t *testing.T) {
	op, ok := Lookup("ADDL")
	assert.True(t, ok)
	assert.Equal(t, ADDL, op)

	_, ok = Lookup("addl")
	assert.False(t, ok)

	_, ok = Lookup("FROB")
	assert.False(t, ok)
}

func TestStringRoundTrip(t *testing.T) {
	for op := ADD; op <= NOP; op++ {
		name := op.String()
		assert.NotEqual(t, "???", name)
		got, ok := Lookup(name)
		assert.True(t, ok)
		assert.Equal(t, op, got)
	}
}

func TestWritesRegister(t *testing.T) {
	assert.True(t, ADD.WritesRegister())
	assert.True(t, LOADP.WritesRegister())
	assert.True(t, MOVC.WritesRegister())
	assert.False(t, STORE.WritesRegister())
	assert.False(t, CMP.WritesRegister())
	assert.False(t, HALT.WritesRegister())
	assert.False(t, BZ.WritesRegister())
}

func TestClassGrouping(t *testing.T) {
	assert.Equal(t, ClassALU3, DIV.Class())
	assert.Equal(t, ClassStoreP, STOREP.Class())
	assert.Equal(t, ClassNullary, NOP.Class())
}
