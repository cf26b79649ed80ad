package crypto

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// RandomBytes returns n cryptographically secure random bytes.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("crypto: random_bytes: %w", err)
	}
	return b, nil
}

// RandomInt returns a uniformly distributed integer in [0, max) from a
// cryptographically secure source. Used to size the 100-250 byte handshake
// padding.
func RandomInt(max int) (int, error) {
	if max <= 0 {
		return 0, fmt.Errorf("crypto: random_int: max must be positive")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("crypto: random_int: %w", err)
	}
	return int(n.Int64()), nil
}
