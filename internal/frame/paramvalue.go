package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Direction tags the two UTF-16LE direction bytes a PV payload opens
// with (§4.1).
type Direction int

const (
	HostToUnit Direction = iota
	UnitToHost
)

var (
	dirHostToUnit = []byte{'h', 0, 'u', 0}
	dirUnitToHost = []byte{'u', 0, 'h', 0}
)

// ParamValue is a decoded PV payload: a direction, a '/'-separated
// parameter path, and a float32 value.
type ParamValue struct {
	Direction Direction
	Path      string
	Value     float32
}

var ErrTruncatedParamValue = errors.New("frame: truncated PV payload")

// EncodeParamValue serializes the direction marker, a NUL-terminated
// path, and a little-endian f32 — symmetric in both directions per
// spec.md §4.1.
func EncodeParamValue(pv ParamValue) []byte {
	dir := dirHostToUnit
	if pv.Direction == UnitToHost {
		dir = dirUnitToHost
	}

	buf := make([]byte, 0, len(dir)+len(pv.Path)+1+4)
	buf = append(buf, dir...)
	buf = append(buf, pv.Path...)
	buf = append(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(pv.Value))
	return buf
}

// DecodeParamValue parses a PV payload produced by EncodeParamValue (or
// by a real device on the wire).
func DecodeParamValue(payload []byte) (ParamValue, error) {
	if len(payload) < 4 {
		return ParamValue{}, ErrTruncatedParamValue
	}

	var dir Direction
	switch {
	case payload[0] == dirHostToUnit[0] && payload[2] == dirHostToUnit[2]:
		dir = HostToUnit
	case payload[0] == dirUnitToHost[0] && payload[2] == dirUnitToHost[2]:
		dir = UnitToHost
	default:
		return ParamValue{}, fmt.Errorf("frame: unrecognized PV direction bytes %x", payload[:4])
	}

	rest := payload[4:]
	nul := -1
	for i, b := range rest {
		if b == 0 {
			nul = i
			break
		}
	}
	if nul < 0 {
		return ParamValue{}, ErrTruncatedParamValue
	}

	path := string(rest[:nul])
	valBytes := rest[nul+1:]
	if len(valBytes) < 4 {
		return ParamValue{}, ErrTruncatedParamValue
	}

	value := math.Float32frombits(binary.LittleEndian.Uint32(valBytes[:4]))

	return ParamValue{Direction: dir, Path: path, Value: value}, nil
}
