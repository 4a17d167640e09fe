package session

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/k0ucp/ucpbridge/internal/frame"
	"github.com/k0ucp/ucpbridge/internal/paramstore"
)

// readFrame reads one complete frame from r: an 8-byte header (magic,
// little-endian payload size, 2-byte type) followed by the declared
// payload. This is the streaming counterpart to frame.DecodeOne, which
// needs the whole frame already in memory — the same split the
// teacher's agwlib.go makes between its fixed binary.Read(header) and
// the following io.ReadFull(body) on a live socket.
func readFrame(r io.Reader) (frame.Frame, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return frame.Frame{}, err
	}
	if !bytes.Equal(header[0:4], frame.Magic[:]) {
		return frame.Frame{}, frame.ErrBadMagic
	}

	size := int(binary.LittleEndian.Uint16(header[4:6]))
	if size < 2 {
		return frame.Frame{}, fmt.Errorf("%w: declared payload size %d below minimum", frame.ErrShortFrame, size)
	}

	typ := frame.PayloadType{header[6], header[7]}
	payload := make([]byte, size-2)
	if _, err := io.ReadFull(r, payload); err != nil {
		return frame.Frame{}, err
	}
	return frame.Frame{Type: typ, Payload: payload}, nil
}

// readLoop dispatches inbound frames until conn returns an error (remote
// close, or the heartbeat forcing a close on silence) — §4.3 "Reader".
func (s *Session) readLoop(conn Transport) error {
	for {
		fr, err := readFrame(conn)
		if err != nil {
			return err
		}
		s.lastInbound.Store(time.Now().UnixNano())

		switch fr.Type {
		case frame.TypeKeepAlive:
			// deadline already reset above; nothing else to do.
		case frame.TypeParamVal:
			s.handleParamValue(fr.Payload)
		case frame.TypeChunk:
			s.handleChunk(fr.Payload)
		case frame.TypeJSONJM:
			// Diagnostic pass-through (§4.3); no state to update.
		default:
			s.countIgnored()
		}
	}
}

// handleParamValue applies a PV(u→h) observation to the parameter store
// and, per §5's shared-resource policy (shadow state belongs exclusively
// to the sync engine), forwards it unconditionally to UcpIn rather than
// re-checking shadow state here — the echo-suppression decision is made
// exactly once, inside the engine.
func (s *Session) handleParamValue(payload []byte) {
	pv, err := frame.DecodeParamValue(payload)
	if err != nil {
		s.countIgnored()
		return
	}
	if pv.Direction != frame.UnitToHost {
		// A host-to-unit PV arriving inbound would be a protocol
		// violation from this device; counted, not acted on.
		s.countIgnored()
		return
	}

	now := time.Now()
	value := paramstore.Value{Kind: paramstore.KindFloat, Float: pv.Value}
	s.cfg.Params.Update(s.descriptor.Identifier, pv.Path, value, now)
	if s.cfg.Engine != nil {
		s.cfg.Engine.UcpIn(s.descriptor.Identifier, pv.Path, float64(pv.Value), now)
	}
}

// handleChunk decompresses a CK(ZB(...)) state dump and applies every
// (address, value) pair the same way a single PV would be (§4.3
// "CK/ZB → decompress; for each pair, populate C4 and emit one
// parameter-changed event").
func (s *Session) handleChunk(payload []byte) {
	pairs, ok, err := frame.DecodeStateDumpChunk(payload)
	if err != nil || !ok {
		s.countIgnored()
		return
	}

	now := time.Now()
	for _, pair := range pairs {
		if pair.Value.IsString {
			s.cfg.Params.Update(s.descriptor.Identifier, pair.Address,
				paramstore.Value{Kind: paramstore.KindString, String: pair.Value.Text}, now)
			continue
		}

		s.cfg.Params.Update(s.descriptor.Identifier, pair.Address,
			paramstore.Value{Kind: paramstore.KindFloat, Float: pair.Value.Float}, now)
		if s.cfg.Engine != nil {
			s.cfg.Engine.UcpIn(s.descriptor.Identifier, pair.Address, float64(pair.Value.Float), now)
		}
	}
}
