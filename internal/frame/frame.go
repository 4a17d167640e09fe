// Package frame implements the UCP wire frame codec (§4.1): header
// encode/decode, PV parameter-value payloads, and the USB bulk-transport
// fragment reassembler. The frame shape itself — a fixed magic, a
// declared payload length, and a two-byte type tag — mirrors the way the
// teacher's AGWPE header (cmd/samoyed-appserver/agwlib.go) and KISS frame
// (src/kiss.go) are both "magic/length prefixed, decode what you
// recognize, pass the rest through" codecs; this one just swaps KISS's
// FEND-escaping for a length-prefixed frame as spec.md §4.1 requires.
package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic is the 4-byte frame preamble (§4.1).
var Magic = [4]byte{0x55, 0x43, 0x00, 0x01}

const headerLen = 4 + 2 + 2 // magic + payload size + payload type

// PayloadType is the two-ASCII-letter tag in a frame header.
type PayloadType [2]byte

func (t PayloadType) String() string { return string(t[:]) }

var (
	TypeJSONUM    = PayloadType{'U', 'M'}
	TypeJSONJM    = PayloadType{'J', 'M'}
	TypeParamVal  = PayloadType{'P', 'V'}
	TypeParamSet  = PayloadType{'P', 'S'}
	TypeKeepAlive = PayloadType{'K', 'A'}
	TypeDiscAdv   = PayloadType{'D', 'A'}
	TypeDiscQuery = PayloadType{'D', 'Q'}
	TypeZlibBlock = PayloadType{'Z', 'B'}
	TypeChunk     = PayloadType{'C', 'K'}
	TypeAuxFR     = PayloadType{'F', 'R'}
	TypeAuxFD     = PayloadType{'F', 'D'}
	TypeAuxMS     = PayloadType{'M', 'S'}
	TypeAuxBO     = PayloadType{'B', 'O'}
)

var (
	ErrBadMagic            = errors.New("frame: bad magic")
	ErrShortFrame          = errors.New("frame: short frame")
	ErrUnknownPayloadType  = errors.New("frame: unknown payload type")
	ErrDecompressionFailed = errors.New("frame: decompression failed")
)

// Frame is a decoded wire frame: the payload type plus the raw payload
// bytes that follow it (the type tag itself is not included in Payload).
type Frame struct {
	Type    PayloadType
	Payload []byte
}

// Encode serializes a frame: magic, little-endian payload size (which
// includes the 2-byte type tag), type tag, payload.
func Encode(typ PayloadType, payload []byte) []byte {
	size := len(payload) + 2
	buf := make([]byte, 0, headerLen+len(payload))
	buf = append(buf, Magic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(size)) //nolint:gosec
	buf = append(buf, typ[0], typ[1])
	buf = append(buf, payload...)
	return buf
}

// DecodeOne reads one complete frame from the front of b. It returns
// (frame, consumed, nil) on success, or (zero, 0, ErrNeedMore) if b does
// not yet contain a whole frame. A frame with an unrecognized payload
// type is still decoded successfully — spec.md §4.1 only asks that
// unknown types be "carried but not fatal".
func DecodeOne(b []byte) (Frame, int, error) {
	if len(b) < headerLen {
		return Frame{}, 0, ErrNeedMore
	}
	if !bytes.Equal(b[0:4], Magic[:]) {
		return Frame{}, 0, ErrBadMagic
	}

	size := int(binary.LittleEndian.Uint16(b[4:6]))
	if size < 2 {
		return Frame{}, 0, fmt.Errorf("%w: declared payload size %d below minimum", ErrShortFrame, size)
	}

	total := 6 + size
	if len(b) < total {
		return Frame{}, 0, ErrNeedMore
	}

	var typ PayloadType
	typ[0], typ[1] = b[6], b[7]
	payload := append([]byte(nil), b[8:total]...)

	return Frame{Type: typ, Payload: payload}, total, nil
}

// ErrNeedMore is returned by DecodeOne when the buffer holds an
// incomplete frame; it is not a protocol error.
var ErrNeedMore = errors.New("frame: need more data")
