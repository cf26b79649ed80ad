package rlpx

import (
	"bytes"
	"testing"
)

func TestHelloEncodeDecodeRoundTrip(t *testing.T) {
	h := &Hello{
		Version:    ProtocolVersion,
		ClientID:   "tiny-ether/v0.1.0",
		Caps:       []Cap{{Name: "tiny", Version: 1}, {Name: "eth", Version: 68}},
		ListenPort: 30303,
		NodeID:     bytes.Repeat([]byte{0xab}, 64),
	}
	enc := EncodeHello(h)

	got, err := DecodeHello(enc)
	if err != nil {
		t.Fatalf("DecodeHello failed: %v", err)
	}
	if got.Version != h.Version {
		t.Errorf("Version = %d, want %d", got.Version, h.Version)
	}
	if got.ClientID != h.ClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, h.ClientID)
	}
	if len(got.Caps) != 2 || got.Caps[0] != h.Caps[0] || got.Caps[1] != h.Caps[1] {
		t.Errorf("Caps = %v, want %v", got.Caps, h.Caps)
	}
	if got.ListenPort != h.ListenPort {
		t.Errorf("ListenPort = %d, want %d", got.ListenPort, h.ListenPort)
	}
	if !bytes.Equal(got.NodeID, h.NodeID) {
		t.Errorf("NodeID mismatch")
	}
}

func TestDecodeHelloRejectsShortNodeID(t *testing.T) {
	h := &Hello{
		Version:    ProtocolVersion,
		ClientID:   "x",
		Caps:       nil,
		ListenPort: 1,
		NodeID:     []byte{0x01, 0x02},
	}
	enc := EncodeHello(h)
	if _, err := DecodeHello(enc); err == nil {
		t.Error("DecodeHello should reject a node_id that is not 64 bytes")
	}
}

func TestDecodeHelloRejectsGarbage(t *testing.T) {
	if _, err := DecodeHello([]byte{0xff}); err == nil {
		t.Error("DecodeHello should reject malformed RLP")
	}
}

func TestDecodeHelloRejectsOverlongClientID(t *testing.T) {
	h := &Hello{
		Version:    ProtocolVersion,
		ClientID:   string(bytes.Repeat([]byte{'a'}, MaxClientIDLen+1)),
		ListenPort: 1,
		NodeID:     bytes.Repeat([]byte{0x01}, 64),
	}
	enc := EncodeHello(h)
	if _, err := DecodeHello(enc); err == nil {
		t.Error("DecodeHello should reject a client id exceeding MaxClientIDLen")
	}
}

func TestDisconnectEncodeDecodeRoundTrip(t *testing.T) {
	for _, reason := range []DisconnectReason{
		DiscRequested, DiscTooManyPeers, DiscSubprotocolReason, DiscPingTimeout,
	} {
		enc := EncodeDisconnect(reason)
		got, err := DecodeDisconnect(enc)
		if err != nil {
			t.Fatalf("DecodeDisconnect(%v) failed: %v", reason, err)
		}
		if got != reason {
			t.Errorf("DecodeDisconnect round trip = %v, want %v", got, reason)
		}
	}
}

func TestDisconnectReasonString(t *testing.T) {
	if DiscRequested.String() != "requested" {
		t.Errorf("DiscRequested.String() = %q", DiscRequested.String())
	}
	if DisconnectReason(0x99).String() == "" {
		t.Error("unknown DisconnectReason should still stringify")
	}
}

func TestMatchingCaps(t *testing.T) {
	local := []Cap{{Name: "eth", Version: 68}, {Name: "tiny", Version: 1}}
	remote := []Cap{{Name: "tiny", Version: 1}, {Name: "snap", Version: 1}}
	got := MatchingCaps(local, remote)
	if len(got) != 1 || got[0].Name != "tiny" {
		t.Errorf("MatchingCaps = %v, want [{tiny 1}]", got)
	}
}

func TestEncodeDecodeUintHelpers(t *testing.T) {
	for _, v := range []uint64{0, 1, 127, 128, 300, 1 << 20, 1<<63 - 1} {
		enc := encodeUint(v)
		got, err := decodeUint(enc)
		if err != nil {
			t.Fatalf("decodeUint(encodeUint(%d)) failed: %v", v, err)
		}
		if got != v {
			t.Errorf("decodeUint(encodeUint(%d)) = %d", v, got)
		}
	}
}
