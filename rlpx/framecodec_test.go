package rlpx

import (
	"bytes"
	"testing"

	"github.com/tomzok/tiny-ether/crypto"
)

func handshakeSecretsPair(t *testing.T) (*Secrets, *Secrets) {
	t.Helper()
	initiatorStatic, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	recipientStatic, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	initiator, err := NewInitiatorHandshake(initiatorStatic, &recipientStatic.PublicKey)
	if err != nil {
		t.Fatalf("NewInitiatorHandshake failed: %v", err)
	}
	recipient, err := NewRecipientHandshake(recipientStatic)
	if err != nil {
		t.Fatalf("NewRecipientHandshake failed: %v", err)
	}

	auth, err := initiator.MakeAuthMsg()
	if err != nil {
		t.Fatalf("MakeAuthMsg failed: %v", err)
	}
	if err := recipient.HandleAuthMsg(auth); err != nil {
		t.Fatalf("HandleAuthMsg failed: %v", err)
	}
	ack, err := recipient.MakeAckMsg()
	if err != nil {
		t.Fatalf("MakeAckMsg failed: %v", err)
	}
	if err := initiator.HandleAckMsg(ack); err != nil {
		t.Fatalf("HandleAckMsg failed: %v", err)
	}

	initSecrets, err := initiator.DeriveSecrets()
	if err != nil {
		t.Fatalf("initiator DeriveSecrets failed: %v", err)
	}
	recvSecrets, err := recipient.DeriveSecrets()
	if err != nil {
		t.Fatalf("recipient DeriveSecrets failed: %v", err)
	}
	return initSecrets, recvSecrets
}

func TestFrameCoderLoopbackSingleFrame(t *testing.T) {
	initSecrets, recvSecrets := handshakeSecretsPair(t)

	sideA, err := NewFrameCoder(initSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder (A) failed: %v", err)
	}
	sideB, err := NewFrameCoder(recvSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder (B) failed: %v", err)
	}

	payload := []byte("devp2p hello capability negotiation body")
	frame, err := sideA.WriteFrame(0, nil, HelloMsg, payload)
	if err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	msg, consumed, err := sideB.ReadFrame(frame)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if consumed != len(frame) {
		t.Errorf("ReadFrame consumed %d bytes, want %d", consumed, len(frame))
	}
	if msg.Code != HelloMsg {
		t.Errorf("msg.Code = %d, want %d", msg.Code, HelloMsg)
	}
	if !bytes.Equal(msg.Payload, payload) {
		t.Errorf("msg.Payload = %q, want %q", msg.Payload, payload)
	}
}

func TestFrameCoderLoopbackMultipleFramesAdvanceCounter(t *testing.T) {
	initSecrets, recvSecrets := handshakeSecretsPair(t)
	sideA, err := NewFrameCoder(initSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder (A) failed: %v", err)
	}
	sideB, err := NewFrameCoder(recvSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder (B) failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		frame, err := sideA.WriteFrame(0, nil, PingMsg, nil)
		if err != nil {
			t.Fatalf("WriteFrame #%d failed: %v", i, err)
		}
		msg, _, err := sideB.ReadFrame(frame)
		if err != nil {
			t.Fatalf("ReadFrame #%d failed: %v", i, err)
		}
		if msg.Code != PingMsg {
			t.Errorf("frame #%d: Code = %d, want %d", i, msg.Code, PingMsg)
		}
	}
}

func TestFrameCoderReadFrameIncomplete(t *testing.T) {
	initSecrets, recvSecrets := handshakeSecretsPair(t)
	sideA, err := NewFrameCoder(initSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}
	sideB, err := NewFrameCoder(recvSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}

	frame, err := sideA.WriteFrame(0, nil, PongMsg, []byte("x"))
	if err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if _, _, err := sideB.ReadFrame(frame[:headerSize]); err != ErrIncompleteFrame {
		t.Errorf("ReadFrame on a short header = %v, want ErrIncompleteFrame", err)
	}
	if _, _, err := sideB.ReadFrame(frame[:len(frame)-1]); err != ErrIncompleteFrame {
		t.Errorf("ReadFrame one byte short = %v, want ErrIncompleteFrame", err)
	}
}

func TestFrameCoderHeaderMACMismatch(t *testing.T) {
	initSecrets, recvSecrets := handshakeSecretsPair(t)
	sideA, err := NewFrameCoder(initSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}
	sideB, err := NewFrameCoder(recvSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}

	frame, err := sideA.WriteFrame(0, nil, HelloMsg, []byte("payload"))
	if err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	frame[0] ^= 0xff // corrupt the encrypted header

	if _, _, err := sideB.ReadFrame(frame); !isFrameErr(err, ErrHeaderMAC) {
		t.Errorf("ReadFrame on a corrupted header = %v, want ErrHeaderMAC", err)
	}
}

func TestFrameCoderBodyMACMismatch(t *testing.T) {
	initSecrets, recvSecrets := handshakeSecretsPair(t)
	sideA, err := NewFrameCoder(initSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}
	sideB, err := NewFrameCoder(recvSecrets, false)
	if err != nil {
		t.Fatalf("NewFrameCoder failed: %v", err)
	}

	frame, err := sideA.WriteFrame(0, nil, HelloMsg, []byte("payload-for-body-mac-test"))
	if err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	frame[headerSize+macSize] ^= 0xff // corrupt the first byte of the encrypted body

	if _, _, err := sideB.ReadFrame(frame); !isFrameErr(err, ErrBodyMAC) {
		t.Errorf("ReadFrame on a corrupted body = %v, want ErrBodyMAC", err)
	}
}

func isFrameErr(err error, want error) bool {
	rerr, ok := err.(*Error)
	return ok && rerr.Err == want
}
