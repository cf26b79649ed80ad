package rlpx

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/golang/snappy"
	"github.com/tomzok/tiny-ether/crypto"
	"github.com/tomzok/tiny-ether/rlp"
)

// headerSize is the fixed plaintext header length: 3 bytes body-size plus
// 13 bytes header-data (spec.md §4.5).
const headerSize = 16

// macSize is the MAC tag length appended after both header and body.
const macSize = 16

// MaxFrameBodySize bounds a single frame's body per spec.md §7 (2^24 bytes).
const MaxFrameBodySize = 1 << 24

// ErrIncompleteFrame signals that the buffered bytes do not yet contain a
// whole frame; it is not a protocol failure, only a request for more input.
var ErrIncompleteFrame = errors.New("rlpx: incomplete frame, need more bytes")

// Message is one decoded devp2p-level frame: a small integer type tag and
// the remaining RLP-encoded payload.
type Message struct {
	ProtocolID uint64
	ContextID  *uint64
	Code       uint64
	Payload    []byte
}

// FrameCoder encrypts/decrypts and MAC-chains RLPx frames for one session,
// once per direction. It is installed exactly once into a Channel, holds the
// only egress and ingress MAC states for that channel, and every byte
// transmitted or received MUST pass through it in order (spec.md §3's
// Frame coder invariant).
type FrameCoder struct {
	aesSecret [32]byte
	macSecret [32]byte

	encStream cipher.Stream
	decStream cipher.Stream

	egressMAC  *crypto.KeccakState
	ingressMAC *crypto.KeccakState

	useSnappy bool
}

// NewFrameCoder installs secrets into a fresh frame coder. useSnappy turns
// on snappy compression of every frame body this coder writes and reads,
// the Hello included. It is fixed at construction and is not negotiated
// with the peer, so both sides must be built with the same setting;
// config.Default leaves it off.
func NewFrameCoder(s *Secrets, useSnappy bool) (*FrameCoder, error) {
	block, err := aes.NewCipher(s.AESSecret[:16])
	if err != nil {
		return nil, cryptoError(err)
	}
	zeroIV := make([]byte, aes.BlockSize)

	fc := &FrameCoder{
		aesSecret:  s.AESSecret,
		macSecret:  s.MACSecret,
		encStream:  cipher.NewCTR(block, zeroIV),
		decStream:  cipher.NewCTR(block, zeroIV),
		egressMAC:  s.EgressMAC,
		ingressMAC: s.IngressMAC,
		useSnappy:  useSnappy,
	}
	return fc, nil
}

// WriteFrame encodes one devp2p message into a complete on-wire frame:
// header(16) || header-mac(16) || body(ciphertext, padded to 16) || body-mac(16).
func (fc *FrameCoder) WriteFrame(protocolID uint64, contextID *uint64, code uint64, payload []byte) ([]byte, error) {
	codeItem, _ := rlp.EncodeNode(rlp.Item(encodeUint(code)), nil)
	body := append(codeItem, payload...)

	if fc.useSnappy {
		body = snappy.Encode(nil, body)
	}

	if len(body) > MaxFrameBodySize {
		return nil, frameError(ErrFrameTooLarge)
	}

	headerData := headerDataRLP(protocolID, contextID)
	header := make([]byte, headerSize)
	bs := len(body)
	header[0] = byte(bs >> 16)
	header[1] = byte(bs >> 8)
	header[2] = byte(bs)
	copy(header[3:], headerData)

	encHeader := make([]byte, headerSize)
	fc.encStream.XORKeyStream(encHeader, header)

	headerMAC, err := fc.macMix(fc.egressMAC, encHeader)
	if err != nil {
		return nil, cryptoError(err)
	}

	bodyPadded := padTo16(body)
	encBody := make([]byte, len(bodyPadded))
	fc.encStream.XORKeyStream(encBody, bodyPadded)

	fc.egressMAC.Update(encBody)
	seed := fc.egressMAC.Digest()[:16]
	bodyMAC, err := fc.macMix(fc.egressMAC, seed)
	if err != nil {
		return nil, cryptoError(err)
	}

	frame := make([]byte, 0, headerSize+macSize+len(encBody)+macSize)
	frame = append(frame, encHeader...)
	frame = append(frame, headerMAC...)
	frame = append(frame, encBody...)
	frame = append(frame, bodyMAC...)
	return frame, nil
}

// ReadFrame decodes one frame from the front of data, returning the decoded
// message and the number of bytes consumed. If data does not yet hold a
// complete frame, it returns ErrIncompleteFrame and the caller should buffer
// more bytes and retry. Any MAC mismatch is a fatal FrameError.
func (fc *FrameCoder) ReadFrame(data []byte) (*Message, int, error) {
	if len(data) < headerSize+macSize {
		return nil, 0, ErrIncompleteFrame
	}
	encHeader := data[:headerSize]
	gotHeaderMAC := data[headerSize : headerSize+macSize]

	wantHeaderMAC, err := fc.macMix(fc.ingressMAC, encHeader)
	if err != nil {
		return nil, 0, cryptoError(err)
	}
	if !constantTimeEqual(gotHeaderMAC, wantHeaderMAC) {
		return nil, 0, frameError(ErrHeaderMAC)
	}

	header := make([]byte, headerSize)
	fc.decStream.XORKeyStream(header, encHeader)

	bodySize := int(header[0])<<16 | int(header[1])<<8 | int(header[2])
	if bodySize > MaxFrameBodySize {
		return nil, 0, frameError(ErrFrameTooLarge)
	}
	protocolID, contextID, err := parseHeaderData(header[3:])
	if err != nil {
		return nil, 0, frameError(err)
	}

	paddedSize := (bodySize + 15) / 16 * 16
	frameEnd := headerSize + macSize + paddedSize + macSize
	if len(data) < frameEnd {
		return nil, 0, ErrIncompleteFrame
	}

	encBody := data[headerSize+macSize : headerSize+macSize+paddedSize]
	gotBodyMAC := data[headerSize+macSize+paddedSize : frameEnd]

	fc.ingressMAC.Update(encBody)
	seed := fc.ingressMAC.Digest()[:16]
	wantBodyMAC, err := fc.macMix(fc.ingressMAC, seed)
	if err != nil {
		return nil, 0, cryptoError(err)
	}
	if !constantTimeEqual(gotBodyMAC, wantBodyMAC) {
		return nil, 0, frameError(ErrBodyMAC)
	}

	bodyPadded := make([]byte, paddedSize)
	fc.decStream.XORKeyStream(bodyPadded, encBody)
	body := bodyPadded[:bodySize]

	if fc.useSnappy {
		decoded, err := snappy.Decode(nil, body)
		if err != nil {
			return nil, 0, frameError(fmt.Errorf("snappy: %w", err))
		}
		body = decoded
	}

	codeNode, consumed, err := rlp.ParseNode(body)
	if err != nil {
		return nil, 0, protocolError(err)
	}
	code, err := decodeUint(codeNode.Value())
	if err != nil {
		return nil, 0, protocolError(err)
	}

	msg := &Message{
		ProtocolID: protocolID,
		ContextID:  contextID,
		Code:       code,
		Payload:    body[consumed:],
	}
	return msg, frameEnd, nil
}

// macMix is the shared AES-ECB-mixing step from spec.md §4.5: it folds data
// XORed with AES-ECB(mac-secret, current digest) into the running Keccak
// state and returns the new 16-byte digest prefix.
func (fc *FrameCoder) macMix(mac *crypto.KeccakState, data []byte) ([]byte, error) {
	digest := mac.Digest()[:16]
	encDigest, err := crypto.AESECB(fc.macSecret[:16], digest)
	if err != nil {
		return nil, err
	}
	mixed := crypto.XorBytes(data, encDigest)
	mac.Update(mixed)
	return mac.Digest()[:16], nil
}

func headerDataRLP(protocolID uint64, contextID *uint64) []byte {
	var node rlp.Node
	if contextID != nil {
		node = rlp.List(rlp.Item(encodeUint(protocolID)), rlp.Item(encodeUint(*contextID)))
	} else {
		node = rlp.List(rlp.Item(encodeUint(protocolID)))
	}
	enc, _ := rlp.EncodeNode(node, nil)
	out := make([]byte, 13)
	copy(out, enc) // zero-padded; enc is always <= 13 bytes for small ids
	return out
}

func parseHeaderData(headerData []byte) (protocolID uint64, contextID *uint64, err error) {
	node, _, err := rlp.ParseNode(headerData)
	if err != nil {
		return 0, nil, err
	}
	if !node.IsList() || len(node.Children()) == 0 {
		return 0, nil, fmt.Errorf("header-data: expected a non-empty list")
	}
	protocolID, err = decodeUint(node.Children()[0].Value())
	if err != nil {
		return 0, nil, err
	}
	if len(node.Children()) > 1 {
		ctx, err := decodeUint(node.Children()[1].Value())
		if err != nil {
			return 0, nil, err
		}
		contextID = &ctx
	}
	return protocolID, contextID, nil
}

func padTo16(b []byte) []byte {
	n := (len(b) + 15) / 16 * 16
	if n == len(b) {
		return b
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// zero wipes key material so a CLOSED channel holds no secrets in memory
// (spec.md §5's memory discipline).
func (fc *FrameCoder) zero() {
	for i := range fc.aesSecret {
		fc.aesSecret[i] = 0
	}
	for i := range fc.macSecret {
		fc.macSecret[i] = 0
	}
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
