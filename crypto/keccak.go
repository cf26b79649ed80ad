package crypto

import (
	"hash"

	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash (not SHA3-256: original padding,
// 0x01 domain separator) of the concatenation of all inputs.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Array calculates Keccak-256 and returns it as a fixed 32-byte array.
func Keccak256Array(data ...[]byte) [32]byte {
	var out [32]byte
	copy(out[:], Keccak256(data...))
	return out
}

// KeccakState is a live, non-finalizing Keccak-256 digest. Unlike a one-shot
// hash, it is meant to be updated repeatedly over the life of a session (the
// RLPx rolling MAC keeps exactly this kind of state for its egress/ingress
// direction) and queried for its current digest without being consumed.
type KeccakState struct {
	h hash.Hash
}

// NewKeccakState returns a fresh, empty Keccak-256 state.
func NewKeccakState() *KeccakState {
	return &KeccakState{h: sha3.NewLegacyKeccak256()}
}

// Update folds more bytes into the running state.
func (k *KeccakState) Update(b []byte) {
	k.h.Write(b)
}

// Digest returns the current Keccak-256 digest without resetting or
// otherwise consuming the running state: a subsequent Update continues from
// where the state was before Digest was called.
func (k *KeccakState) Digest() []byte {
	return k.h.Sum(nil)
}
