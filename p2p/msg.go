// Package p2p carries the raw, already-encrypted RLPx byte stream between
// two rlpx.Channel instances. It knows nothing about devp2p message codes
// or frame structure — that belongs to package rlpx — it only conveys
// opaque chunks of bytes in order, either over TCP or (for tests) an
// in-memory pipe.
package p2p

import (
	"io"
	"sync"
)

// Chunk is one write the rlpx Channel handed to its tx callback: a
// complete auth/ack packet or a complete frame, exactly as produced.
// Transport never splits or merges chunks, matching spec.md §5's ordering
// guarantee that inbound bytes are consumed in arrival order.
type Chunk struct {
	Data []byte
}

// Pipe creates two connected transports; a chunk written to one is
// readable from the other. Closing either end closes both.
func Pipe() (*PipeEnd, *PipeEnd) {
	ch1 := make(chan Chunk, 16)
	ch2 := make(chan Chunk, 16)
	done := make(chan struct{})
	once := new(sync.Once)

	a := &PipeEnd{send: ch1, recv: ch2, done: done, closeOnce: once}
	b := &PipeEnd{send: ch2, recv: ch1, done: done, closeOnce: once}
	return a, b
}

// PipeEnd is one end of a Pipe, implementing Transport.
type PipeEnd struct {
	send      chan Chunk
	recv      chan Chunk
	done      chan struct{}
	closeOnce *sync.Once
}

// ReadChunk blocks until a chunk arrives from the peer or the pipe closes.
func (p *PipeEnd) ReadChunk() ([]byte, error) {
	select {
	case c, ok := <-p.recv:
		if !ok {
			return nil, io.EOF
		}
		return c.Data, nil
	case <-p.done:
		return nil, io.EOF
	}
}

// WriteChunk sends one chunk of bytes to the peer.
func (p *PipeEnd) WriteChunk(data []byte) error {
	select {
	case <-p.done:
		return ErrTransportClosed
	default:
	}
	select {
	case p.send <- Chunk{Data: data}:
		return nil
	case <-p.done:
		return ErrTransportClosed
	}
}

// Close shuts down both ends of the pipe.
func (p *PipeEnd) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
