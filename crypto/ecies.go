// ecies.go implements the Elliptic Curve Integrated Encryption Scheme (ECIES)
// on secp256k1 used to wrap the RLPx handshake auth/ack packets. It provides
// ECDH key agreement, a NIST SP 800-56 Concatenation KDF, AES-128-CTR
// encryption, and HMAC-SHA-256 message authentication.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"hash"
)

const (
	// eciesKeyLen is the length of each half of the KDF output (16 bytes each):
	// the AES-128 key, and the MAC key material that is hashed to 32 bytes.
	eciesKeyLen = 16

	// eciesIVLen is the AES-128-CTR IV length.
	eciesIVLen = 16

	// eciesMACLen is the HMAC-SHA-256 output length.
	eciesMACLen = 32
)

var (
	// ErrInvalidPublicKey is returned when the provided public key is invalid.
	ErrInvalidPublicKey = errors.New("ecies: invalid public key")

	// ErrECIESCiphertext is returned when the ciphertext is malformed.
	ErrECIESCiphertext = errors.New("ecies: invalid ciphertext")

	// ErrMACMismatch is returned when HMAC verification fails.
	ErrMACMismatch = errors.New("ecies: MAC verification failed")

	// ErrKeyAgreement is returned when ECDH key agreement fails.
	ErrKeyAgreement = errors.New("ecies: key agreement failed")
)

// ECIESEncrypt encrypts plaintext for the given recipient public key using
// the construction in spec.md §4.3:
//
//  1. Generate an ephemeral secp256k1 key pair (r, R').
//  2. z = ECDH(r, R).
//  3. k = KDF(z, 32); kE = k[0:16]; kM = SHA256(k[16:32]).
//  4. Choose a random 16-byte IV.
//  5. C = AES-128-CTR(kE, IV, plaintext).
//  6. D = HMAC-SHA256(kM, IV || C || authData).
//
// The output is R'_uncompressed || IV || C || D. authData (for RLPx auth/ack
// packets, the 2-byte big-endian total ciphertext length) is authenticated
// but not encrypted and not included in the output.
func ECIESEncrypt(pub *ecdsa.PublicKey, plaintext, authData []byte) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	curve := S256().(*secp256k1Curve)
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, ErrInvalidPublicKey
	}

	ephKey, err := GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("ecies: generate ephemeral key: %w", err)
	}

	z, err := ecdhAgreement(ephKey, pub)
	if err != nil {
		return nil, err
	}

	kE, kM := eciesKDF(z)

	iv := make([]byte, eciesIVLen)
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("ecies: generate IV: %w", err)
	}

	ciphertext, err := aesCTR(kE, iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("ecies: encrypt: %w", err)
	}

	d := computeHMAC(kM, iv, ciphertext, authData)

	ephPub := FromECDSAPub(&ephKey.PublicKey)
	out := make([]byte, 0, len(ephPub)+eciesIVLen+len(ciphertext)+eciesMACLen)
	out = append(out, ephPub...)
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, d...)
	return out, nil
}

// ECIESDecrypt reverses ECIESEncrypt using the recipient's private key,
// recomputing and comparing the HMAC tag in constant time.
func ECIESDecrypt(prv *ecdsa.PrivateKey, data, authData []byte) ([]byte, error) {
	if prv == nil {
		return nil, errors.New("ecies: nil private key")
	}

	minSize := 65 + eciesIVLen + eciesMACLen
	if len(data) < minSize {
		return nil, ErrECIESCiphertext
	}

	ephPub, err := UnmarshalPubkey(data[:65])
	if err != nil {
		return nil, ErrInvalidPublicKey
	}

	iv := data[65 : 65+eciesIVLen]
	macStart := len(data) - eciesMACLen
	ciphertext := data[65+eciesIVLen : macStart]
	msgMAC := data[macStart:]

	z, err := ecdhAgreement(prv, ephPub)
	if err != nil {
		return nil, err
	}

	kE, kM := eciesKDF(z)

	expectedMAC := computeHMAC(kM, iv, ciphertext, authData)
	if subtle.ConstantTimeCompare(msgMAC, expectedMAC) != 1 {
		return nil, ErrMACMismatch
	}

	plaintext, err := aesCTR(kE, iv, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("ecies: decrypt: %w", err)
	}
	return plaintext, nil
}

// ecdhAgreement performs ECDH key agreement on secp256k1, returning the
// x-coordinate of the shared point as a 32-byte big-endian value.
func ecdhAgreement(prv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	curve := S256().(*secp256k1Curve)

	sx, sy := curve.ScalarMult(pub.X, pub.Y, prv.D.Bytes())
	if sx.Sign() == 0 && sy.Sign() == 0 {
		return nil, ErrKeyAgreement
	}

	shared := make([]byte, 32)
	sxBytes := sx.Bytes()
	copy(shared[32-len(sxBytes):], sxBytes)
	return shared, nil
}

// GenerateSharedSecret performs ECDH between two parties and returns the
// shared secret (the 32-byte X coordinate). Exposed for the handshake
// engine, which performs ECDH directly between ephemeral keys.
func GenerateSharedSecret(prv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	if prv == nil {
		return nil, errors.New("ecies: nil private key")
	}
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	curve := S256().(*secp256k1Curve)
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, ErrInvalidPublicKey
	}
	return ecdhAgreement(prv, pub)
}

// eciesKDF derives kE (16 bytes, AES-128 key) and kM (32 bytes, HMAC key)
// from a shared secret via concatKDF(SHA-256, z, nil, 32): kE is the first
// half, and kM is the SHA-256 of the second 16-byte half (spec.md §4.3 step 3).
func eciesKDF(z []byte) (kE, kM []byte) {
	k := concatKDF(sha256.New(), z, nil, 2*eciesKeyLen)
	kE = k[:eciesKeyLen]
	mac := sha256.Sum256(k[eciesKeyLen:])
	kM = mac[:]
	return kE, kM
}

// concatKDF implements the NIST SP 800-56 Concatenation Key Derivation
// Function (section 4.1): repeatedly hash a big-endian counter, the shared
// secret z, and optional shared info s1, until kdLen bytes are produced.
func concatKDF(h hash.Hash, z, s1 []byte, kdLen int) []byte {
	k := make([]byte, 0, kdLen+h.Size())
	counter := make([]byte, 4)
	for i := uint32(1); len(k) < kdLen; i++ {
		counter[0] = byte(i >> 24)
		counter[1] = byte(i >> 16)
		counter[2] = byte(i >> 8)
		counter[3] = byte(i)
		h.Reset()
		h.Write(counter)
		h.Write(z)
		h.Write(s1)
		k = h.Sum(k)
	}
	return k[:kdLen]
}

// aesCTR encrypts or decrypts data using AES-128-CTR. CTR mode is
// symmetric, so the same function handles both directions.
func aesCTR(key, iv, data []byte) ([]byte, error) {
	if len(key) != eciesKeyLen {
		return nil, fmt.Errorf("ecies: invalid key length: %d", len(key))
	}
	if len(iv) != eciesIVLen {
		return nil, fmt.Errorf("ecies: invalid IV length: %d", len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	stream := cipher.NewCTR(block, iv)
	out := make([]byte, len(data))
	stream.XORKeyStream(out, data)
	return out, nil
}

// computeHMAC computes HMAC-SHA-256 over iv || ciphertext || authData.
func computeHMAC(macKey, iv, ciphertext, authData []byte) []byte {
	h := hmac.New(sha256.New, macKey)
	h.Write(iv)
	h.Write(ciphertext)
	h.Write(authData)
	return h.Sum(nil)
}

// AESECB encrypts a single 16-byte block with AES-128 in ECB mode (no
// chaining). The frame coder's MAC construction mixes exactly one block at
// a time into its running Keccak state, which is the only place this
// adapter exposes raw single-block ECB.
func AESECB(key, block []byte) ([]byte, error) {
	if len(block) != aes.BlockSize {
		return nil, fmt.Errorf("ecies: ecb block must be %d bytes", aes.BlockSize)
	}
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, aes.BlockSize)
	c.Encrypt(out, block)
	return out, nil
}

// XorBytes returns a XOR b, truncated to the shorter of the two slices'
// lengths. Used for the 32-byte nonce/mac-secret XOR mixing in the
// handshake engine and frame coder.
func XorBytes(a, b []byte) []byte {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		out[i] = a[i] ^ b[i]
	}
	return out
}
