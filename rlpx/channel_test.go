package rlpx

import (
	"testing"

	"github.com/tomzok/tiny-ether/crypto"
)

func TestChannelHandshakeReachesActiveAndExchangesHello(t *testing.T) {
	initKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	recvKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	var chA, chB *Channel
	cfgA := Config{ClientID: "tiny-ether/initiator", Caps: []Cap{{Name: "tiny", Version: 1}}, ListenPort: 30301}
	cfgB := Config{ClientID: "tiny-ether/recipient", Caps: []Cap{{Name: "tiny", Version: 1}}, ListenPort: 30302}

	var bEvents []Event
	chA, err = NewChannel(cfgA, initKey, func(b []byte) error {
		evs, err := chB.Feed(b)
		bEvents = append(bEvents, evs...)
		return err
	}, nil)
	if err != nil {
		t.Fatalf("NewChannel (A) failed: %v", err)
	}
	var aEvents []Event
	chB, err = NewChannel(cfgB, recvKey, func(b []byte) error {
		evs, err := chA.Feed(b)
		aEvents = append(aEvents, evs...)
		return err
	}, nil)
	if err != nil {
		t.Fatalf("NewChannel (B) failed: %v", err)
	}

	if err := chB.Accept(); err != nil {
		t.Fatalf("chB.Accept failed: %v", err)
	}
	if err := chA.Connect(&recvKey.PublicKey); err != nil {
		t.Fatalf("chA.Connect failed: %v", err)
	}

	if chA.State() != StateActive {
		t.Errorf("chA.State() = %v, want ACTIVE", chA.State())
	}
	if chB.State() != StateActive {
		t.Errorf("chB.State() = %v, want ACTIVE", chB.State())
	}

	foundHello := false
	for _, ev := range aEvents {
		if ev.Kind == EventHello {
			foundHello = true
			if len(ev.HelloCaps) != 1 || ev.HelloCaps[0].Name != "tiny" {
				t.Errorf("chA observed hello caps = %v", ev.HelloCaps)
			}
			if ev.HelloListenPort != cfgB.ListenPort {
				t.Errorf("chA observed listen_port = %d, want %d", ev.HelloListenPort, cfgB.ListenPort)
			}
		}
	}
	if !foundHello {
		t.Error("chA never observed an EventHello from chB")
	}

	foundHello = false
	for _, ev := range bEvents {
		if ev.Kind == EventHello {
			foundHello = true
		}
	}
	if !foundHello {
		t.Error("chB never observed an EventHello from chA")
	}
}

func TestChannelPingPongAfterHandshake(t *testing.T) {
	chA, chB := activePair(t)

	if err := chA.SendPing(); err != nil {
		t.Fatalf("SendPing failed: %v", err)
	}
	if err := chB.SendPong(); err != nil {
		t.Fatalf("SendPong failed: %v", err)
	}
	if chA.State() != StateActive || chB.State() != StateActive {
		t.Fatalf("channels left ACTIVE state after ping/pong: A=%v B=%v", chA.State(), chB.State())
	}
}

func TestChannelDisconnectClosesBothSides(t *testing.T) {
	chA, chB := activePair(t)

	if err := chA.SendDisconnect(DiscRequested); err != nil {
		t.Fatalf("SendDisconnect failed: %v", err)
	}
	if chA.State() != StateClosed {
		t.Errorf("chA.State() = %v, want CLOSED after sending disconnect", chA.State())
	}
	if chB.State() != StateClosed {
		t.Errorf("chB.State() = %v, want CLOSED after receiving disconnect", chB.State())
	}
}

func TestChannelSendFrameBeforeActiveFails(t *testing.T) {
	staticKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	cfg := Config{ClientID: "x", ListenPort: 1}
	ch, err := NewChannel(cfg, staticKey, func([]byte) error { return nil }, nil)
	if err != nil {
		t.Fatalf("NewChannel failed: %v", err)
	}
	if err := ch.SendPing(); err == nil {
		t.Error("SendPing before handshake completes should fail")
	}
}

func TestChannelRejectsMissingConfig(t *testing.T) {
	staticKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if _, err := NewChannel(Config{ListenPort: 1}, nil, func([]byte) error { return nil }, nil); err == nil {
		t.Error("NewChannel should reject a nil static key")
	}
	if _, err := NewChannel(Config{}, staticKey, func([]byte) error { return nil }, nil); err == nil {
		t.Error("NewChannel should reject a zero listen_port")
	}
	if _, err := NewChannel(Config{ListenPort: 1}, staticKey, nil, nil); err == nil {
		t.Error("NewChannel should reject a nil tx callback")
	}
}

// activePair builds two channels and drives them through a full handshake,
// returning both in the ACTIVE state.
func activePair(t *testing.T) (*Channel, *Channel) {
	t.Helper()
	initKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	recvKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	var chA, chB *Channel
	cfgA := Config{ClientID: "tiny-ether/initiator", ListenPort: 30301}
	cfgB := Config{ClientID: "tiny-ether/recipient", ListenPort: 30302}

	chA, err = NewChannel(cfgA, initKey, func(b []byte) error {
		_, err := chB.Feed(b)
		return err
	}, nil)
	if err != nil {
		t.Fatalf("NewChannel (A) failed: %v", err)
	}
	chB, err = NewChannel(cfgB, recvKey, func(b []byte) error {
		_, err := chA.Feed(b)
		return err
	}, nil)
	if err != nil {
		t.Fatalf("NewChannel (B) failed: %v", err)
	}

	if err := chB.Accept(); err != nil {
		t.Fatalf("chB.Accept failed: %v", err)
	}
	if err := chA.Connect(&recvKey.PublicKey); err != nil {
		t.Fatalf("chA.Connect failed: %v", err)
	}
	return chA, chB
}
