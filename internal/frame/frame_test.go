package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	types := []PayloadType{TypeJSONUM, TypeJSONJM, TypeParamVal, TypeKeepAlive, TypeDiscAdv, TypeDiscQuery, TypeChunk}

	for _, typ := range types {
		payload := []byte("payload-for-" + typ.String())
		wire := Encode(typ, payload)

		f, consumed, err := DecodeOne(wire)
		require.NoError(t, err)
		assert.Equal(t, len(wire), consumed)
		assert.Equal(t, typ, f.Type)
		assert.Equal(t, payload, f.Payload)
	}
}

func TestDecodeOneNeedsMore(t *testing.T) {
	wire := Encode(TypeKeepAlive, nil)

	for n := 0; n < len(wire); n++ {
		_, _, err := DecodeOne(wire[:n])
		assert.ErrorIs(t, err, ErrNeedMore, "prefix of length %d", n)
	}
}

func TestDecodeOneBadMagic(t *testing.T) {
	bad := []byte{0, 0, 0, 0, 4, 0, 'K', 'A'}
	_, _, err := DecodeOne(bad)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeOneUnknownPayloadTypeIsNotFatal(t *testing.T) {
	wire := Encode(PayloadType{'Z', 'Z'}, []byte("x"))
	f, _, err := DecodeOne(wire)
	require.NoError(t, err)
	assert.Equal(t, PayloadType{'Z', 'Z'}, f.Type)
}

func TestParamValueRoundTrip(t *testing.T) {
	cases := []ParamValue{
		{Direction: HostToUnit, Path: "line/ch1/volume", Value: 0.5039},
		{Direction: UnitToHost, Path: "main/lr/volume", Value: 0.75},
		{Direction: HostToUnit, Path: "line/ch1/mute", Value: 0},
	}

	for _, pv := range cases {
		wire := EncodeParamValue(pv)
		got, err := DecodeParamValue(wire)
		require.NoError(t, err)
		assert.Equal(t, pv, got)
	}
}

func TestParamValueTruncated(t *testing.T) {
	_, err := DecodeParamValue([]byte{'h', 0, 'u'})
	assert.ErrorIs(t, err, ErrTruncatedParamValue)
}

func TestZlibRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		raw := rapid.SliceOf(rapid.Byte()).Draw(rt, "raw")
		compressed := CompressZlib(raw)
		back, err := DecompressZlib(compressed)
		require.NoError(t, err)
		assert.Equal(t, raw, back)
	})
}

func TestDecompressZlibFailsOnGarbage(t *testing.T) {
	_, err := DecompressZlib([]byte("not zlib data"))
	assert.ErrorIs(t, err, ErrDecompressionFailed)
}

func TestFrameFieldsRoundTripProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		typ := PayloadType{byte(rapid.IntRange(32, 126).Draw(rt, "t0")), byte(rapid.IntRange(32, 126).Draw(rt, "t1"))}
		payload := rapid.SliceOfN(rapid.Byte(), 0, 4096).Draw(rt, "payload")

		wire := Encode(typ, payload)
		f, consumed, err := DecodeOne(wire)
		require.NoError(rt, err)
		assert.Equal(rt, len(wire), consumed)
		assert.Equal(rt, typ, f.Type)
		assert.Equal(rt, payload, f.Payload)
	})
}
