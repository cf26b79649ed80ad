package rlpx

import (
	"fmt"

	"github.com/tomzok/tiny-ether/rlp"
)

// Devp2p base-protocol message codes (spec.md §4.7). These occupy frame
// header protocol-id 0 and are always understood, independent of any
// negotiated sub-protocol.
const (
	HelloMsg      uint64 = 0x00
	DisconnectMsg uint64 = 0x01
	PingMsg       uint64 = 0x02
	PongMsg       uint64 = 0x03
)

// ProtocolVersion is the devp2p base protocol version this package speaks.
const ProtocolVersion = 4

// MaxClientIDLen bounds the Hello client id string.
const MaxClientIDLen = 80

// Cap names one sub-protocol capability (name + version) a peer advertises
// in its Hello message.
type Cap struct {
	Name    string
	Version uint
}

func (c Cap) String() string {
	return fmt.Sprintf("%s/%d", c.Name, c.Version)
}

// Hello is the devp2p capability-handshake message, the first frame each
// side sends once the cryptographic handshake has installed a frame coder.
type Hello struct {
	Version    uint64
	ClientID   string
	Caps       []Cap
	ListenPort uint64
	NodeID     []byte // 64 bytes: uncompressed public key minus the 0x04 prefix.
}

// EncodeHello serializes h as the devp2p Hello body:
// [p2p_version, client_id, capabilities[], listen_port, node_id(64)], via
// the reflection-based struct codec in encode.go (Hello's field order is
// already the wire order, so no intermediate wire type is needed).
func EncodeHello(h *Hello) []byte {
	enc, _ := rlp.EncodeToBytes(h)
	return enc
}

// DecodeHello parses a devp2p Hello body.
func DecodeHello(data []byte) (*Hello, error) {
	var h Hello
	if err := rlp.DecodeBytes(data, &h); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadHello, err)
	}
	if len(h.ClientID) > MaxClientIDLen {
		return nil, fmt.Errorf("%w: client id too long", ErrBadHello)
	}
	if len(h.NodeID) != 64 {
		return nil, fmt.Errorf("%w: node_id must be 64 bytes", ErrBadHello)
	}
	return &h, nil
}

// DisconnectReason is the devp2p disconnect reason enumeration (spec.md §6).
type DisconnectReason uint8

const (
	DiscRequested          DisconnectReason = 0x00
	DiscTCPError           DisconnectReason = 0x01
	DiscProtocolError      DisconnectReason = 0x02
	DiscUselessPeer        DisconnectReason = 0x03
	DiscTooManyPeers       DisconnectReason = 0x04
	DiscAlreadyConnected   DisconnectReason = 0x05
	DiscIncompatibleVersion DisconnectReason = 0x06
	DiscInvalidIdentity    DisconnectReason = 0x07
	DiscClientQuitting     DisconnectReason = 0x08
	DiscUnexpectedIdentity DisconnectReason = 0x09
	DiscConnectedToSelf    DisconnectReason = 0x0A
	DiscPingTimeout        DisconnectReason = 0x0B
	DiscSubprotocolReason  DisconnectReason = 0x10
)

func (r DisconnectReason) String() string {
	switch r {
	case DiscRequested:
		return "requested"
	case DiscTCPError:
		return "tcp-error"
	case DiscProtocolError:
		return "protocol-error"
	case DiscUselessPeer:
		return "useless-peer"
	case DiscTooManyPeers:
		return "too-many-peers"
	case DiscAlreadyConnected:
		return "already-connected"
	case DiscIncompatibleVersion:
		return "incompatible-version"
	case DiscInvalidIdentity:
		return "invalid-identity"
	case DiscClientQuitting:
		return "client-quitting"
	case DiscUnexpectedIdentity:
		return "unexpected-identity"
	case DiscConnectedToSelf:
		return "connected-to-self"
	case DiscPingTimeout:
		return "ping-timeout"
	case DiscSubprotocolReason:
		return "subprotocol-reason"
	default:
		return fmt.Sprintf("unknown(0x%02x)", uint8(r))
	}
}

// disconnectWire is the single-field struct the reflection codec encodes a
// Disconnect body as: [reason(uint)].
type disconnectWire struct {
	Reason uint64
}

// EncodeDisconnect serializes a Disconnect body: [reason(uint)].
func EncodeDisconnect(reason DisconnectReason) []byte {
	enc, _ := rlp.EncodeToBytes(&disconnectWire{Reason: uint64(reason)})
	return enc
}

// DecodeDisconnect parses a Disconnect body.
func DecodeDisconnect(data []byte) (DisconnectReason, error) {
	var w disconnectWire
	if err := rlp.DecodeBytes(data, &w); err != nil {
		return 0, protocolError(err)
	}
	return DisconnectReason(w.Reason), nil
}

// MatchingCaps returns the capabilities shared by name and version between
// local and remote, in local's order.
func MatchingCaps(local, remote []Cap) []Cap {
	var matched []Cap
	for _, lc := range local {
		for _, rc := range remote {
			if lc.Name == rc.Name && lc.Version == rc.Version {
				matched = append(matched, lc)
			}
		}
	}
	return matched
}

func encodeUint(u uint64) []byte {
	if u == 0 {
		return nil
	}
	var b [8]byte
	n := 8
	for n > 0 {
		b[n-1] = byte(u)
		u >>= 8
		n--
		if u == 0 {
			break
		}
	}
	start := 0
	for start < 8 && b[start] == 0 {
		start++
	}
	return b[start:]
}

func decodeUint(b []byte) (uint64, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if len(b) > 8 {
		return 0, fmt.Errorf("integer too large")
	}
	if len(b) > 1 && b[0] == 0 {
		return 0, rlp.ErrCanonInt
	}
	var v uint64
	for _, x := range b {
		v = (v << 8) | uint64(x)
	}
	return v, nil
}
