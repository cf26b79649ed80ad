// Package rlpx implements the RLPx encrypted, authenticated, framed
// transport used between Ethereum-style peers, and the devp2p base
// protocol (hello/disconnect/ping/pong) carried inside it.
package rlpx

import (
	"errors"
	"fmt"
)

// Kind discriminates the error taxonomy a Channel operation can fail with.
// Only IoError is ever retryable by the embedder; every other kind is fatal
// to the channel and drives it to CLOSED with secrets zeroed.
type Kind int

const (
	// InputErrorKind covers malformed RLP, non-minimal lengths, truncated buffers.
	InputErrorKind Kind = iota
	// CryptoErrorKind covers failed ECDH, signature verification, HMAC/MAC mismatch.
	CryptoErrorKind
	// HandshakeErrorKind covers wrong handshake stage, bad version, ECIES failure.
	HandshakeErrorKind
	// FrameErrorKind covers header/body MAC mismatch and oversize frames.
	FrameErrorKind
	// ProtocolErrorKind covers unknown subprotocol/message type, bad hello payload.
	ProtocolErrorKind
	// IoErrorKind is surfaced opaquely from the embedder's transport.
	IoErrorKind
)

func (k Kind) String() string {
	switch k {
	case InputErrorKind:
		return "InputError"
	case CryptoErrorKind:
		return "CryptoError"
	case HandshakeErrorKind:
		return "HandshakeError"
	case FrameErrorKind:
		return "FrameError"
	case ProtocolErrorKind:
		return "ProtocolError"
	case IoErrorKind:
		return "IoError"
	default:
		return "UnknownError"
	}
}

// Error is the taxonomy-tagged error type every Channel/FrameCoder/Handshake
// operation returns. It wraps the underlying cause so errors.Is/As still
// traverse through it.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rlpx: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func inputError(err error) *Error     { return newError(InputErrorKind, err) }
func cryptoError(err error) *Error    { return newError(CryptoErrorKind, err) }
func handshakeError(err error) *Error { return newError(HandshakeErrorKind, err) }
func frameError(err error) *Error     { return newError(FrameErrorKind, err) }
func protocolError(err error) *Error  { return newError(ProtocolErrorKind, err) }

// Sentinel leaf causes, wrapped into a taxonomy Error before crossing a
// package boundary.
var (
	ErrHandshakeFailed  = errors.New("rlpx: handshake failed")
	ErrWrongStage       = errors.New("rlpx: operation invalid for current handshake stage")
	ErrVersionOutOfRange = errors.New("rlpx: protocol version out of range")
	ErrHeaderMAC        = errors.New("rlpx: header MAC mismatch")
	ErrBodyMAC          = errors.New("rlpx: body MAC mismatch")
	ErrFrameTooLarge    = errors.New("rlpx: body exceeds maximum frame size")
	ErrUnknownProtocol  = errors.New("rlpx: unknown subprotocol id")
	ErrUnknownMsgType   = errors.New("rlpx: unknown devp2p message type")
	ErrBadHello         = errors.New("rlpx: malformed hello payload")
	ErrChannelClosed    = errors.New("rlpx: channel is closed")
	ErrAlreadyHandshook = errors.New("rlpx: handshake already performed on this channel")
)
