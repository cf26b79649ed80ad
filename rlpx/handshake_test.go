package rlpx

import (
	"bytes"
	"testing"

	"github.com/tomzok/tiny-ether/crypto"
)

func TestHandshakeLoopbackDerivesMatchingSecrets(t *testing.T) {
	initiatorStatic, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey (initiator) failed: %v", err)
	}
	recipientStatic, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey (recipient) failed: %v", err)
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

	if initSecrets.AESSecret != recvSecrets.AESSecret {
		t.Error("aes-secret mismatch between initiator and recipient")
	}
	if initSecrets.MACSecret != recvSecrets.MACSecret {
		t.Error("mac-secret mismatch between initiator and recipient")
	}
	if initSecrets.SharedSecret != recvSecrets.SharedSecret {
		t.Error("shared-secret mismatch between initiator and recipient")
	}

	// The initiator's egress MAC must seed identically to the recipient's
	// ingress MAC, and vice versa, since they track the same rolling state
	// from opposite ends.
	if !bytes.Equal(initSecrets.EgressMAC.Digest(), recvSecrets.IngressMAC.Digest()) {
		t.Error("initiator egress MAC seed does not match recipient ingress MAC seed")
	}
	if !bytes.Equal(initSecrets.IngressMAC.Digest(), recvSecrets.EgressMAC.Digest()) {
		t.Error("initiator ingress MAC seed does not match recipient egress MAC seed")
	}

	if recipient.RemoteStaticPubkey().X.Cmp(initiatorStatic.PublicKey.X) != 0 {
		t.Error("recipient did not learn the initiator's static public key from auth")
	}
}

func TestHandshakeRejectsWrongRoleCalls(t *testing.T) {
	staticKey, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	remote, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}

	initiator, err := NewInitiatorHandshake(staticKey, &remote.PublicKey)
	if err != nil {
		t.Fatalf("NewInitiatorHandshake failed: %v", err)
	}
	if _, err := initiator.MakeAckMsg(); err == nil {
		t.Error("initiator calling MakeAckMsg should fail")
	}

	recipient, err := NewRecipientHandshake(staticKey)
	if err != nil {
		t.Fatalf("NewRecipientHandshake failed: %v", err)
	}
	if _, err := recipient.MakeAuthMsg(); err == nil {
		t.Error("recipient calling MakeAuthMsg should fail")
	}
}

func TestHandleAuthMsgRejectsTamperedPacket(t *testing.T) {
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
	auth, err := initiator.MakeAuthMsg()
	if err != nil {
		t.Fatalf("MakeAuthMsg failed: %v", err)
	}
	auth[len(auth)-1] ^= 0xff

	recipient, err := NewRecipientHandshake(recipientStatic)
	if err != nil {
		t.Fatalf("NewRecipientHandshake failed: %v", err)
	}
	if err := recipient.HandleAuthMsg(auth); err == nil {
		t.Error("HandleAuthMsg should reject a tampered auth packet")
	}
}

func TestAddPaddingWithinBounds(t *testing.T) {
	base := []byte("fixed-size-plaintext")
	for i := 0; i < 20; i++ {
		padded, err := addPadding(append([]byte(nil), base...))
		if err != nil {
			t.Fatalf("addPadding failed: %v", err)
		}
		added := len(padded) - len(base)
		if added < PaddingMin || added > PaddingMax {
			t.Errorf("padding added %d bytes, want between %d and %d", added, PaddingMin, PaddingMax)
		}
	}
}
