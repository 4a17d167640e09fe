package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReassemblerSingleShot(t *testing.T) {
	wire := Encode(TypeKeepAlive, nil)
	wire = append(wire, Encode(TypeParamVal, []byte("x"))...)

	var r Reassembler
	frames := r.Feed(wire)
	require.Len(t, frames, 2)
	assert.Equal(t, TypeKeepAlive, frames[0].Type)
	assert.Equal(t, TypeParamVal, frames[1].Type)
	assert.Zero(t, r.Pending())
}

func TestReassemblerOneByteAtATime(t *testing.T) {
	wire := Encode(TypeKeepAlive, nil)
	wire = append(wire, Encode(TypeParamVal, []byte("hello"))...)
	wire = append(wire, Encode(TypeDiscAdv, []byte("world!!"))...)

	var r Reassembler
	var got []Frame
	for i := 0; i < len(wire); i++ {
		got = append(got, r.Feed(wire[i:i+1])...)
	}

	require.Len(t, got, 3)
	assert.Equal(t, TypeKeepAlive, got[0].Type)
	assert.Equal(t, TypeParamVal, got[1].Type)
	assert.Equal(t, []byte("hello"), got[1].Payload)
	assert.Equal(t, TypeDiscAdv, got[2].Type)
	assert.Equal(t, []byte("world!!"), got[2].Payload)
}

func TestReassemblerDiscardsLeadingGarbage(t *testing.T) {
	wire := append([]byte("garbage-before-magic"), Encode(TypeKeepAlive, nil)...)

	var r Reassembler
	frames := r.Feed(wire)
	require.Len(t, frames, 1)
	assert.Equal(t, TypeKeepAlive, frames[0].Type)
}

func TestReassemblerPreservesTrailingPartial(t *testing.T) {
	wire := Encode(TypeParamVal, []byte("0123456789"))

	var r Reassembler
	first := r.Feed(wire[:len(wire)-3])
	assert.Empty(t, first)
	assert.NotZero(t, r.Pending())

	rest := r.Feed(wire[len(wire)-3:])
	require.Len(t, rest, 1)
	assert.Equal(t, TypeParamVal, rest[0].Type)
	assert.Zero(t, r.Pending())
}
