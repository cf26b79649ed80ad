package rlp

import "errors"

// Tree-node RLP API: a lower-level, allocation-explicit alternative to the
// reflection-based Encode/Decode above, for callers (the handshake engine,
// the frame coder) that build or inspect RLP structures directly instead of
// through Go struct tags.

var (
	// ErrMalformedPrefix is returned when a type-and-length prefix byte
	// does not correspond to any valid RLP encoding.
	ErrMalformedPrefix = errors.New("rlp: malformed prefix")

	// ErrShortInput is returned when the input ends before a declared
	// item or list payload is fully present.
	ErrShortInput = errors.New("rlp: short input")

	// ErrNonMinimalLength is returned when a long-form length prefix is
	// used where the short form (or single-byte form) would suffice, or
	// when a length prefix itself has a leading zero byte.
	ErrNonMinimalLength = errors.New("rlp: non-minimal length encoding")
)

// Node is an RLP tree node: either a string (leaf, possibly zero-length)
// or a list of child nodes.
type Node struct {
	isList   bool
	value    []byte // set when isList == false
	children []Node // set when isList == true
}

// Item wraps a byte string as a leaf RLP node.
func Item(b []byte) Node {
	return Node{value: append([]byte(nil), b...)}
}

// List wraps zero or more nodes as a list RLP node.
func List(nodes ...Node) Node {
	return Node{isList: true, children: append([]Node(nil), nodes...)}
}

// IsList reports whether n is a list node.
func (n Node) IsList() bool { return n.isList }

// Value returns the leaf byte string. It is empty for list nodes.
func (n Node) Value() []byte { return n.value }

// Children returns the list's child nodes. It is nil for leaf nodes.
func (n Node) Children() []Node { return n.children }

// EncodeNode serializes node into out_buf (appending) and returns the total
// number of bytes the node's encoding occupies. Encoding is idempotent: the
// same tree always produces the same bytes.
func EncodeNode(node Node, outBuf []byte) ([]byte, int) {
	enc := encodeNode(node)
	return append(outBuf, enc...), len(enc)
}

func encodeNode(node Node) []byte {
	if !node.isList {
		return encodeString(node.value)
	}
	var payload []byte
	for _, child := range node.children {
		payload = append(payload, encodeNode(child)...)
	}
	return wrapList(payload)
}

// ParseNode parses one RLP value from the front of data and returns the
// resulting node together with the number of bytes consumed. It validates
// strictly: non-canonical lengths, truncated buffers, and malformed prefixes
// are all rejected rather than tolerated.
func ParseNode(data []byte) (Node, int, error) {
	if len(data) == 0 {
		return Node{}, 0, ErrShortInput
	}
	prefix := data[0]

	switch {
	case prefix <= 0x7f:
		return Item(data[0:1]), 1, nil

	case prefix <= 0xb7:
		size := int(prefix - 0x80)
		end := 1 + size
		if end > len(data) {
			return Node{}, 0, ErrShortInput
		}
		if size == 1 && data[1] <= 0x7f {
			return Node{}, 0, ErrNonMinimalLength
		}
		return Item(data[1:end]), end, nil

	case prefix <= 0xbf:
		lenOfLen := int(prefix - 0xb7)
		if 1+lenOfLen > len(data) {
			return Node{}, 0, ErrShortInput
		}
		sizeBytes := data[1 : 1+lenOfLen]
		if sizeBytes[0] == 0 {
			return Node{}, 0, ErrNonMinimalLength
		}
		size := int(readBigEndian(sizeBytes))
		if size <= 55 {
			return Node{}, 0, ErrNonMinimalLength
		}
		start := 1 + lenOfLen
		end := start + size
		if end > len(data) {
			return Node{}, 0, ErrShortInput
		}
		return Item(data[start:end]), end, nil

	case prefix <= 0xf7:
		size := int(prefix - 0xc0)
		end := 1 + size
		if end > len(data) {
			return Node{}, 0, ErrShortInput
		}
		children, err := parseChildren(data[1:end])
		if err != nil {
			return Node{}, 0, err
		}
		return List(children...), end, nil

	default:
		lenOfLen := int(prefix - 0xf7)
		if 1+lenOfLen > len(data) {
			return Node{}, 0, ErrShortInput
		}
		sizeBytes := data[1 : 1+lenOfLen]
		if sizeBytes[0] == 0 {
			return Node{}, 0, ErrNonMinimalLength
		}
		size := int(readBigEndian(sizeBytes))
		if size <= 55 {
			return Node{}, 0, ErrNonMinimalLength
		}
		start := 1 + lenOfLen
		end := start + size
		if end > len(data) {
			return Node{}, 0, ErrShortInput
		}
		children, err := parseChildren(data[start:end])
		if err != nil {
			return Node{}, 0, err
		}
		return List(children...), end, nil
	}
}

func parseChildren(payload []byte) ([]Node, error) {
	var children []Node
	pos := 0
	for pos < len(payload) {
		child, n, err := ParseNode(payload[pos:])
		if err != nil {
			return nil, err
		}
		children = append(children, child)
		pos += n
	}
	return children, nil
}
