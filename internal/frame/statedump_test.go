package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStateDumpScenario(t *testing.T) {
	// line/ch1/{volume: 0.75, mute: 0.0, pan: 0.5} — §8 scenario 6.
	pairs := []Pair{
		{Address: "line/ch1/volume", Value: Value{Float: 0.75}},
		{Address: "line/ch1/mute", Value: Value{Float: 0}},
		{Address: "line/ch1/pan", Value: Value{Float: 0.5}},
	}

	raw := EncodeStateDump(pairs)
	got, err := ParseStateDump(raw)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, pr := range pairs {
		assert.Equal(t, pr.Address, got[i].Address)
		assert.InDelta(t, pr.Value.Float, got[i].Value.Float, 1e-6)
	}
}

func TestParseStateDumpWithStringField(t *testing.T) {
	pairs := []Pair{
		{Address: "device/name", Value: Value{IsString: true, Text: "Main Mixer"}},
		{Address: "line/ch1/volume", Value: Value{Float: 0.25}},
	}

	raw := EncodeStateDump(pairs)
	got, err := ParseStateDump(raw)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].Value.IsString)
	assert.Equal(t, "Main Mixer", got[0].Value.Text)
	assert.InDelta(t, float32(0.25), got[1].Value.Float, 1e-6)
}

func TestParseStateDumpUnbalancedObject(t *testing.T) {
	// 'i' "x" '{' with no closing brace.
	raw := []byte{'i', 1, 0, 'x', '{'}
	_, err := ParseStateDump(raw)
	assert.ErrorIs(t, err, ErrUnbalancedObj)
}

func TestStateDumpChunkRoundTrip(t *testing.T) {
	pairs := []Pair{
		{Address: "line/ch1/volume", Value: Value{Float: 0.75}},
		{Address: "line/ch1/mute", Value: Value{Float: 0}},
	}

	ck := EncodeStateDumpChunk(pairs)
	got, ok, err := DecodeStateDumpChunk(ck)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, got, 2)
	assert.Equal(t, pairs[0].Address, got[0].Address)
}

func TestDecodeChunkSkipsNonZBInnerType(t *testing.T) {
	payload := append([]byte{'F', 'R'}, []byte("passthrough")...)
	pairs, ok, err := DecodeStateDumpChunk(payload)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, pairs)
}
