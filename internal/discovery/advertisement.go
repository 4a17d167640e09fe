package discovery

import "bytes"

// parseAdvertisement decodes a DA payload into identifier, model, and
// firmware: three null-terminated ASCII fields in that order, with any
// trailing bytes treated as forward-compatible padding and ignored
// (DESIGN.md Open Question 1). A payload missing any of the three
// fields fails.
func parseAdvertisement(payload []byte) (identifier, model, firmware string, ok bool) {
	rest := payload

	identifier, rest, ok = nextField(rest)
	if !ok {
		return "", "", "", false
	}
	model, rest, ok = nextField(rest)
	if !ok {
		return "", "", "", false
	}
	firmware, _, ok = nextField(rest)
	if !ok {
		return "", "", "", false
	}
	return identifier, model, firmware, true
}

func nextField(b []byte) (field string, rest []byte, ok bool) {
	idx := bytes.IndexByte(b, 0)
	if idx < 0 {
		return "", nil, false
	}
	return string(b[:idx]), b[idx+1:], true
}

// encodeQuery builds a DQ payload carrying the client identity string,
// null-terminated to match the DA field convention.
func encodeQuery(clientIdentity string) []byte {
	buf := make([]byte, 0, len(clientIdentity)+1)
	buf = append(buf, clientIdentity...)
	buf = append(buf, 0)
	return buf
}
