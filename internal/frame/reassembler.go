package frame

import "bytes"

// Reassembler accepts arbitrary byte chunks from the USB bulk transport —
// which may split a frame across transfer boundaries, or pack several
// frames into one transfer — and yields complete frames as they become
// available, carrying a trailing partial frame across calls. Leading
// garbage before the first magic is discarded (§4.1).
//
// This plays the same role for the USB transport that the teacher's
// kiss_frame_t accumulator plays for a KISS byte stream (src/kiss.go):
// feed bytes in, get frames out, keep whatever's left for next time.
type Reassembler struct {
	buf []byte
}

// Feed appends a chunk and returns every complete frame it can now
// extract, in order.
func (r *Reassembler) Feed(chunk []byte) []Frame {
	r.buf = append(r.buf, chunk...)

	var frames []Frame
	for {
		r.discardGarbage()

		f, consumed, err := DecodeOne(r.buf)
		switch {
		case err == nil:
			frames = append(frames, f)
			r.buf = r.buf[consumed:]
		case err == ErrNeedMore: //nolint:errorlint
			return frames
		default:
			// A malformed frame at the current magic position: drop one
			// byte and keep looking rather than wedging forever on bad
			// data (spec.md §7: protocol errors are recoverable at the
			// frame level).
			if len(r.buf) == 0 {
				return frames
			}
			r.buf = r.buf[1:]
		}
	}
}

// discardGarbage advances past any bytes preceding the next magic
// sequence, or empties the buffer if no magic is present at all.
func (r *Reassembler) discardGarbage() {
	if len(r.buf) < 4 {
		return
	}
	idx := bytes.Index(r.buf, Magic[:])
	if idx < 0 {
		// Keep the last 3 bytes: they might be the start of a magic that
		// completes on the next Feed call.
		if len(r.buf) > 3 {
			r.buf = r.buf[len(r.buf)-3:]
		}
		return
	}
	r.buf = r.buf[idx:]
}

// Pending reports how many unconsumed bytes are buffered, for tests and
// diagnostics.
func (r *Reassembler) Pending() int { return len(r.buf) }
