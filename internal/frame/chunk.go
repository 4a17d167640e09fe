package frame

import "fmt"

// DecodeChunk unwraps a CK container: a 2-byte inner-type tag followed by
// the remaining bytes as the inner payload (DESIGN.md open-question #2).
// If the inner type is ZB, the caller gets back the still-compressed
// bytes — decompression and tokenizing is a separate step so a session
// reader can decide whether it even wants to pay for it. Any inner type
// other than ZB returns ok=false so the caller can skip it, per spec.md's
// explicit "skip rather than fail" instruction.
func DecodeChunk(payload []byte) (inner PayloadType, innerPayload []byte, ok bool, err error) {
	if len(payload) < 2 {
		return PayloadType{}, nil, false, fmt.Errorf("%w: CK container", ErrShortFrame)
	}
	inner = PayloadType{payload[0], payload[1]}
	innerPayload = payload[2:]
	return inner, innerPayload, inner == TypeZlibBlock, nil
}

// DecodeStateDumpChunk is the common case: a CK frame's payload wrapping
// a ZB block, fully decompressed and tokenized into flat pairs. Returns
// ok=false (no error) if the chunk doesn't carry a ZB block, so session
// readers can simply skip non-state-dump chunk types.
func DecodeStateDumpChunk(ckPayload []byte) (pairs []Pair, ok bool, err error) {
	inner, innerPayload, isZB, err := DecodeChunk(ckPayload)
	if err != nil {
		return nil, false, err
	}
	if !isZB {
		_ = inner
		return nil, false, nil
	}

	raw, err := DecompressZlib(innerPayload)
	if err != nil {
		return nil, false, err
	}

	pairs, err = ParseStateDump(raw)
	if err != nil {
		return nil, false, err
	}
	return pairs, true, nil
}

// EncodeStateDumpChunk is the inverse of DecodeStateDumpChunk, used to
// build CK(ZB(...)) test fixtures.
func EncodeStateDumpChunk(pairs []Pair) []byte {
	raw := EncodeStateDump(pairs)
	compressed := CompressZlib(raw)
	payload := make([]byte, 0, 2+len(compressed))
	payload = append(payload, TypeZlibBlock[0], TypeZlibBlock[1])
	payload = append(payload, compressed...)
	return payload
}
