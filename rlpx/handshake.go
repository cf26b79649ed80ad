package rlpx

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"

	"github.com/tomzok/tiny-ether/crypto"
	"github.com/tomzok/tiny-ether/rlp"
)

// PaddingMin and PaddingMax bound the random padding appended to auth/ack
// plaintexts (spec.md §4.4, §6).
const (
	PaddingMin = 100
	PaddingMax = 250
)

// Role identifies which side of the handshake a Handshake value drives.
type Role int

const (
	// RoleInitiator dials out and knows the remote static public key up front.
	RoleInitiator Role = iota
	// RoleRecipient accepts a connection and learns the remote static key from auth.
	RoleRecipient
)

// Handshake carries the mutable state of one in-progress cryptographic
// handshake in a single struct that holds the fields of every stage; fields
// of a stage not yet reached are zero or nil. The methods check the role,
// and DeriveSecrets checks that the remote ephemeral key is known, but the
// order MakeAuthMsg/HandleAuthMsg/MakeAckMsg/HandleAckMsg/DeriveSecrets is
// not otherwise enforced.
type Handshake struct {
	role Role

	staticKey    *ecdsa.PrivateKey
	ephemeralKey *ecdsa.PrivateKey
	nonce        [32]byte

	remoteStaticPub    *ecdsa.PublicKey
	remoteEphemeralPub *ecdsa.PublicKey
	remoteNonce        [32]byte
	remoteVersion      uint64

	authSent []byte
	authRecv []byte
	ackSent  []byte
	ackRecv  []byte
}

// NewInitiatorHandshake begins a handshake as the initiator, who must
// already know the recipient's static public key.
func NewInitiatorHandshake(staticKey *ecdsa.PrivateKey, remoteStatic *ecdsa.PublicKey) (*Handshake, error) {
	h, err := newHandshake(RoleInitiator, staticKey)
	if err != nil {
		return nil, err
	}
	h.remoteStaticPub = remoteStatic
	return h, nil
}

// NewRecipientHandshake begins a handshake as the recipient, who learns the
// remote static public key from the incoming auth packet.
func NewRecipientHandshake(staticKey *ecdsa.PrivateKey) (*Handshake, error) {
	return newHandshake(RoleRecipient, staticKey)
}

func newHandshake(role Role, staticKey *ecdsa.PrivateKey) (*Handshake, error) {
	eph, err := crypto.GenerateKey()
	if err != nil {
		return nil, cryptoError(fmt.Errorf("generate ephemeral key: %w", err))
	}
	var nonce [32]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, cryptoError(fmt.Errorf("generate nonce: %w", err))
	}
	return &Handshake{
		role:         role,
		staticKey:    staticKey,
		ephemeralKey: eph,
		nonce:        nonce,
	}, nil
}

// MakeAuthMsg builds the initiator's ECIES-wrapped auth packet for transmission.
func (h *Handshake) MakeAuthMsg() ([]byte, error) {
	if h.role != RoleInitiator {
		return nil, handshakeError(ErrWrongStage)
	}

	shared, err := crypto.GenerateSharedSecret(h.staticKey, h.remoteStaticPub)
	if err != nil {
		return nil, cryptoError(fmt.Errorf("static ECDH: %w", err))
	}
	signed := crypto.XorBytes(shared, h.nonce[:])

	var sigInput [32]byte
	copy(sigInput[:], signed)
	sig, err := crypto.Sign(sigInput[:], h.ephemeralKey)
	if err != nil {
		return nil, cryptoError(fmt.Errorf("sign auth: %w", err))
	}

	staticPub := crypto.FromECDSAPub(&h.staticKey.PublicKey)[1:] // drop 0x04 prefix -> 64 bytes

	plain := rlp.List(
		rlp.Item(sig),
		rlp.Item(staticPub),
		rlp.Item(h.nonce[:]),
		rlp.Item(encodeUint(ProtocolVersion)),
	)
	plainBytes, _ := rlp.EncodeNode(plain, nil)
	plainBytes, err = addPadding(plainBytes)
	if err != nil {
		return nil, err
	}

	enc, err := eciesSealSized(h.remoteStaticPub, plainBytes)
	if err != nil {
		return nil, cryptoError(fmt.Errorf("encrypt auth: %w", err))
	}
	h.authSent = enc
	return enc, nil
}

// HandleAuthMsg decrypts and parses an incoming auth packet (recipient side),
// populating the remote static/ephemeral keys and nonce but not yet deriving
// secrets — see Channel.LoadAuth in channel.go for the staged variant, and
// DeriveSecrets below for the derivation.
func (h *Handshake) HandleAuthMsg(data []byte) error {
	if h.role != RoleRecipient {
		return handshakeError(ErrWrongStage)
	}
	h.authRecv = data

	plain, err := eciesOpenSized(h.staticKey, data)
	if err != nil {
		return handshakeError(fmt.Errorf("decrypt auth: %w", err))
	}

	node, _, err := rlp.ParseNode(plain)
	if err != nil {
		return handshakeError(fmt.Errorf("parse auth: %w", err))
	}
	if !node.IsList() || len(node.Children()) < 4 {
		return handshakeError(fmt.Errorf("auth: expected at least 4 fields"))
	}
	fields := node.Children()

	sig := fields[0].Value()
	if len(sig) != 65 {
		return handshakeError(fmt.Errorf("auth: signature must be 65 bytes"))
	}
	staticPubBytes := fields[1].Value()
	if len(staticPubBytes) != 64 {
		return handshakeError(fmt.Errorf("auth: static pubkey must be 64 bytes"))
	}
	nonceBytes := fields[2].Value()
	if len(nonceBytes) != 32 {
		return handshakeError(fmt.Errorf("auth: nonce must be 32 bytes"))
	}
	version, err := decodeUint(fields[3].Value())
	if err != nil {
		return handshakeError(fmt.Errorf("auth: bad version: %w", err))
	}
	if version < ProtocolVersion {
		return handshakeError(ErrVersionOutOfRange)
	}

	remoteStatic, err := crypto.UnmarshalPubkey(append([]byte{0x04}, staticPubBytes...))
	if err != nil {
		return handshakeError(fmt.Errorf("auth: bad static pubkey: %w", err))
	}

	shared, err := crypto.GenerateSharedSecret(h.staticKey, remoteStatic)
	if err != nil {
		return cryptoError(fmt.Errorf("static ECDH: %w", err))
	}
	signed := crypto.XorBytes(shared, nonceBytes)
	var sigInput [32]byte
	copy(sigInput[:], signed)

	remoteEphemeral, err := crypto.SigToPub(sigInput[:], sig)
	if err != nil {
		return handshakeError(fmt.Errorf("auth: bad signature: %w", err))
	}

	h.remoteStaticPub = remoteStatic
	h.remoteEphemeralPub = remoteEphemeral
	copy(h.remoteNonce[:], nonceBytes)
	h.remoteVersion = version
	return nil
}

// MakeAckMsg builds the recipient's ECIES-wrapped ack packet.
func (h *Handshake) MakeAckMsg() ([]byte, error) {
	if h.role != RoleRecipient {
		return nil, handshakeError(ErrWrongStage)
	}
	if h.remoteStaticPub == nil {
		return nil, handshakeError(ErrWrongStage)
	}

	ephPub := crypto.FromECDSAPub(&h.ephemeralKey.PublicKey)[1:] // 64 bytes
	plain := rlp.List(
		rlp.Item(ephPub),
		rlp.Item(h.nonce[:]),
		rlp.Item(encodeUint(ProtocolVersion)),
	)
	plainBytes, _ := rlp.EncodeNode(plain, nil)
	plainBytes, err := addPadding(plainBytes)
	if err != nil {
		return nil, err
	}

	enc, err := eciesSealSized(h.remoteStaticPub, plainBytes)
	if err != nil {
		return nil, cryptoError(fmt.Errorf("encrypt ack: %w", err))
	}
	h.ackSent = enc
	return enc, nil
}

// HandleAckMsg decrypts and parses an incoming ack packet (initiator side).
func (h *Handshake) HandleAckMsg(data []byte) error {
	if h.role != RoleInitiator {
		return handshakeError(ErrWrongStage)
	}
	h.ackRecv = data

	plain, err := eciesOpenSized(h.staticKey, data)
	if err != nil {
		return handshakeError(fmt.Errorf("decrypt ack: %w", err))
	}

	node, _, err := rlp.ParseNode(plain)
	if err != nil {
		return handshakeError(fmt.Errorf("parse ack: %w", err))
	}
	if !node.IsList() || len(node.Children()) < 3 {
		return handshakeError(fmt.Errorf("ack: expected at least 3 fields"))
	}
	fields := node.Children()

	ephBytes := fields[0].Value()
	if len(ephBytes) != 64 {
		return handshakeError(fmt.Errorf("ack: ephemeral pubkey must be 64 bytes"))
	}
	nonceBytes := fields[1].Value()
	if len(nonceBytes) != 32 {
		return handshakeError(fmt.Errorf("ack: nonce must be 32 bytes"))
	}
	version, err := decodeUint(fields[2].Value())
	if err != nil {
		return handshakeError(fmt.Errorf("ack: bad version: %w", err))
	}
	if version < ProtocolVersion {
		return handshakeError(ErrVersionOutOfRange)
	}

	remoteEphemeral, err := crypto.UnmarshalPubkey(append([]byte{0x04}, ephBytes...))
	if err != nil {
		return handshakeError(fmt.Errorf("ack: bad ephemeral pubkey: %w", err))
	}

	h.remoteEphemeralPub = remoteEphemeral
	copy(h.remoteNonce[:], nonceBytes)
	h.remoteVersion = version
	return nil
}

// Secrets holds the four symmetric values a derived handshake produces.
type Secrets struct {
	SharedSecret [32]byte
	AESSecret    [32]byte
	MACSecret    [32]byte
	EgressMAC    *crypto.KeccakState
	IngressMAC   *crypto.KeccakState
}

// DeriveSecrets computes the shared/aes/mac secrets and seeds the egress and
// ingress MAC states, per spec.md §4.4. Both roles run the same formulas;
// only which nonce/cipher-blob plays "local" vs "remote" differs, and that
// is already captured by h.nonce/h.remoteNonce and h.*Sent/h.*Recv above.
func (h *Handshake) DeriveSecrets() (*Secrets, error) {
	if h.remoteEphemeralPub == nil {
		return nil, handshakeError(ErrWrongStage)
	}

	ephemeralShared, err := crypto.GenerateSharedSecret(h.ephemeralKey, h.remoteEphemeralPub)
	if err != nil {
		return nil, cryptoError(fmt.Errorf("ephemeral ECDH: %w", err))
	}

	var nonceRecipient, nonceInitiator []byte
	var authSent, ackSent []byte
	switch h.role {
	case RoleInitiator:
		nonceInitiator = h.nonce[:]
		nonceRecipient = h.remoteNonce[:]
		authSent = h.authSent
		ackSent = h.ackRecv
	case RoleRecipient:
		nonceInitiator = h.remoteNonce[:]
		nonceRecipient = h.nonce[:]
		authSent = h.authRecv
		ackSent = h.ackSent
	}

	nonceHash := crypto.Keccak256(nonceRecipient, nonceInitiator)
	sharedSecret := crypto.Keccak256(ephemeralShared, nonceHash)
	aesSecret := crypto.Keccak256(ephemeralShared, sharedSecret)
	macSecret := crypto.Keccak256(ephemeralShared, aesSecret)

	var egressSeed, ingressSeed []byte
	switch h.role {
	case RoleInitiator:
		egressSeed = append(crypto.XorBytes(macSecret, nonceRecipient), authSent...)
		ingressSeed = append(crypto.XorBytes(macSecret, nonceInitiator), ackSent...)
	case RoleRecipient:
		ingressSeed = append(crypto.XorBytes(macSecret, nonceRecipient), authSent...)
		egressSeed = append(crypto.XorBytes(macSecret, nonceInitiator), ackSent...)
	}

	egress := crypto.NewKeccakState()
	egress.Update(egressSeed)
	ingress := crypto.NewKeccakState()
	ingress.Update(ingressSeed)

	s := &Secrets{EgressMAC: egress, IngressMAC: ingress}
	copy(s.SharedSecret[:], sharedSecret)
	copy(s.AESSecret[:], aesSecret)
	copy(s.MACSecret[:], macSecret)
	return s, nil
}

// RemoteStaticPubkey returns the remote static public key once known
// (immediately for an initiator, after HandleAuthMsg for a recipient).
func (h *Handshake) RemoteStaticPubkey() *ecdsa.PublicKey { return h.remoteStaticPub }

// addPadding appends 100-250 random bytes, uniformly chosen per packet.
func addPadding(b []byte) ([]byte, error) {
	span := PaddingMax - PaddingMin + 1
	n, err := crypto.RandomInt(span)
	if err != nil {
		return nil, cryptoError(err)
	}
	pad := make([]byte, PaddingMin+n)
	if _, err := rand.Read(pad); err != nil {
		return nil, cryptoError(err)
	}
	return append(b, pad...), nil
}

// eciesSealSized wraps ECIESEncrypt with the RLPx auth/ack framing
// convention: the associated data is the 2-byte big-endian length of the
// *final* ciphertext, computed up front as the plaintext length plus the
// fixed ECIES overhead, so the plaintext is sealed only once.
func eciesSealSized(pub *ecdsa.PublicKey, plaintext []byte) ([]byte, error) {
	const overhead = 65 + 16 + 32 // ephemeral pubkey + IV + HMAC tag
	totalLen := len(plaintext) + overhead
	authData := make([]byte, 2)
	authData[0] = byte(totalLen >> 8)
	authData[1] = byte(totalLen)
	return crypto.ECIESEncrypt(pub, plaintext, authData)
}

// eciesOpenSized reverses eciesSealSized: the auth data is the 2-byte
// length of the whole ciphertext blob, which the caller already has in hand
// (it is simply len(data)).
func eciesOpenSized(prv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	totalLen := len(data)
	authData := []byte{byte(totalLen >> 8), byte(totalLen)}
	return crypto.ECIESDecrypt(prv, data, authData)
}
