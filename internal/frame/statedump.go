package frame

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
)

// Value is a decoded leaf from a state dump: either a float (including
// booleans, which travel as 0.0/1.0 on the wire per spec.md §3) or text.
type Value struct {
	IsString bool
	Float    float32
	Text     string
}

// Pair is one (address, value) produced while walking a decompressed
// state dump, in the order the dump declared them (§8 scenario 6).
type Pair struct {
	Address string
	Value   Value
}

var (
	ErrTruncatedToken = errors.New("frame: truncated state dump token")
	ErrUnbalancedObj  = errors.New("frame: unbalanced object nesting in state dump")
)

// DecompressZlib inflates a ZB payload. Kept separate from the tokenizer
// so callers (and tests) can round-trip compress/decompress independent
// of the property-stream grammar.
func DecompressZlib(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err) //nolint:errorlint
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressionFailed, err) //nolint:errorlint
	}
	return out, nil
}

// CompressZlib is the inverse of DecompressZlib, used by tests and by
// anything synthesizing CK(ZB(...)) fixtures (SPEC_FULL.md §6).
func CompressZlib(raw []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(raw)
	_ = w.Close()
	return buf.Bytes()
}

// ParseStateDump walks a decompressed property stream and returns the
// flattened (address, value) pairs in declaration order.
//
// Grammar (§4.1, nesting/length-encoding as decided in DESIGN.md): each
// identifier is `'i' uint16-LE-length name-bytes`, immediately followed
// by either a nested object `'{' ... '}'` or a leaf value `'d' float32`
// or `'S' uint16-LE-length text-bytes`.
func ParseStateDump(data []byte) ([]Pair, error) {
	p := &dumpParser{data: data}
	pairs, err := p.parseObjectBody(nil)
	if err != nil {
		return nil, err
	}
	return pairs, nil
}

type dumpParser struct {
	data []byte
	pos  int
}

func (p *dumpParser) remaining() int { return len(p.data) - p.pos }

func (p *dumpParser) readByte() (byte, error) {
	if p.remaining() < 1 {
		return 0, ErrTruncatedToken
	}
	b := p.data[p.pos]
	p.pos++
	return b, nil
}

func (p *dumpParser) readLenPrefixed() (string, error) {
	if p.remaining() < 2 {
		return "", ErrTruncatedToken
	}
	n := int(binary.LittleEndian.Uint16(p.data[p.pos : p.pos+2]))
	p.pos += 2
	if p.remaining() < n {
		return "", ErrTruncatedToken
	}
	s := string(p.data[p.pos : p.pos+n])
	p.pos += n
	return s, nil
}

func (p *dumpParser) readFloat32() (float32, error) {
	if p.remaining() < 4 {
		return 0, ErrTruncatedToken
	}
	bits := binary.LittleEndian.Uint32(p.data[p.pos : p.pos+4])
	p.pos += 4
	return math.Float32frombits(bits), nil
}

// parseObjectBody parses identifier/value pairs until it sees a '}' (or
// runs out of input, which is the top-level case) and returns the
// flattened pairs under the given path prefix.
func (p *dumpParser) parseObjectBody(pathPrefix []string) ([]Pair, error) {
	var out []Pair

	for p.remaining() > 0 {
		tag, err := p.readByte()
		if err != nil {
			return nil, err
		}

		if tag == '}' {
			return out, nil
		}

		if tag != 'i' {
			return nil, fmt.Errorf("frame: unexpected state dump tag %q, expected 'i' or '}'", tag)
		}

		name, err := p.readLenPrefixed()
		if err != nil {
			return nil, err
		}

		valTag, err := p.readByte()
		if err != nil {
			return nil, err
		}

		switch valTag {
		case '{':
			nested, err := p.parseObjectBody(append(pathPrefix, name))
			if err != nil {
				return nil, err
			}
			out = append(out, nested...)
		case 'd':
			f, err := p.readFloat32()
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Address: joinPath(pathPrefix, name), Value: Value{Float: f}})
		case 'S':
			s, err := p.readLenPrefixed()
			if err != nil {
				return nil, err
			}
			out = append(out, Pair{Address: joinPath(pathPrefix, name), Value: Value{IsString: true, Text: s}})
		default:
			return nil, fmt.Errorf("frame: unexpected state dump value tag %q for %q", valTag, name)
		}
	}

	if len(pathPrefix) != 0 {
		return nil, ErrUnbalancedObj
	}
	return out, nil
}

func joinPath(prefix []string, leaf string) string {
	if len(prefix) == 0 {
		return leaf
	}
	return strings.Join(prefix, "/") + "/" + leaf
}

// EncodeStateDump is the inverse of ParseStateDump, grouping pairs by
// their longest shared path prefix into nested objects. It exists for
// test fixtures (SPEC_FULL.md §6) — no production code needs to author a
// state dump, only decode one.
func EncodeStateDump(pairs []Pair) []byte {
	root := &dumpNode{children: map[string]*dumpNode{}}
	for _, pr := range pairs {
		segs := strings.Split(pr.Address, "/")
		n := root
		for _, s := range segs[:len(segs)-1] {
			child, ok := n.children[s]
			if !ok {
				child = &dumpNode{children: map[string]*dumpNode{}}
				n.children[s] = child
				n.order = append(n.order, s)
			}
			n = child
		}
		leaf := segs[len(segs)-1]
		if _, exists := n.children[leaf]; !exists {
			n.order = append(n.order, leaf)
		}
		n.children[leaf] = &dumpNode{leaf: true, value: pr.Value}
	}

	var buf []byte
	for _, k := range root.order {
		buf = appendNode(buf, k, root.children[k])
	}
	return buf
}

type dumpNode struct {
	leaf     bool
	value    Value
	children map[string]*dumpNode
	order    []string
}

func appendNode(buf []byte, name string, n *dumpNode) []byte {
	buf = append(buf, 'i')
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(name))) //nolint:gosec
	buf = append(buf, name...)

	if n.leaf {
		if n.value.IsString {
			buf = append(buf, 'S')
			buf = binary.LittleEndian.AppendUint16(buf, uint16(len(n.value.Text))) //nolint:gosec
			buf = append(buf, n.value.Text...)
		} else {
			buf = append(buf, 'd')
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(n.value.Float))
		}
		return buf
	}

	buf = append(buf, '{')
	for _, k := range n.order {
		buf = appendNode(buf, k, n.children[k])
	}
	buf = append(buf, '}')
	return buf
}
