package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"math/big"
)

// s256 is the secp256k1 curve, implemented in secp256k1_curve.go using
// explicit a=0 point arithmetic (the stdlib's generic elliptic.CurveParams
// math assumes a=-3 and would silently compute wrong points on this curve).
var s256 = S256()

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// secp256k1halfN is half the order, used for Homestead low-S check.
var secp256k1halfN = new(big.Int).Div(secp256k1N, big.NewInt(2))

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(s256, rand.Reader)
}

// Sign calculates an ECDSA signature over a 32-byte hash, returning the
// 65-byte r || s || v encoding with recovery id v in {0,1}.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, errors.New("crypto: hash must be 32 bytes")
	}
	r, s, err := ecdsa.Sign(rand.Reader, prv, hash)
	if err != nil {
		return nil, err
	}
	// Canonicalize s to the lower half of the curve order (Homestead rule).
	// The recovery id is then found by trial against the canonical s, so it
	// already accounts for the negation.
	if s.Cmp(secp256k1halfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	v, err := recoveryID(hash, r, s, &prv.PublicKey)
	if err != nil {
		return nil, err
	}

	sig := make([]byte, 65)
	rBytes := r.Bytes()
	sBytes := s.Bytes()
	copy(sig[32-len(rBytes):32], rBytes)
	copy(sig[64-len(sBytes):64], sBytes)
	sig[64] = v
	return sig, nil
}

// recoveryID determines which of the two candidate recovery ids (0 or 1)
// reconstructs pub from (hash, r, s).
func recoveryID(hash []byte, r, s *big.Int, pub *ecdsa.PublicKey) (byte, error) {
	for v := byte(0); v < 2; v++ {
		qx, qy, err := recoverPublicKey(hash, r, s, v)
		if err != nil {
			continue
		}
		if qx.Cmp(pub.X) == 0 && qy.Cmp(pub.Y) == 0 {
			return v, nil
		}
	}
	return 0, errInvalidSignature
}

// Ecrecover recovers the uncompressed (65-byte) public key from a 32-byte
// hash and a 65-byte r || s || v signature.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	pub, err := SigToPub(hash, sig)
	if err != nil {
		return nil, err
	}
	return FromECDSAPub(pub), nil
}

// SigToPub recovers the public key from a hash and a 65-byte signature
// using the secp256k1 curve's own point-recovery math (see
// secp256k1_curve.go's recoverPublicKey/computeY).
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(sig) != 65 {
		return nil, errors.New("crypto: signature must be 65 bytes [R || S || V]")
	}
	if len(hash) != 32 {
		return nil, errors.New("crypto: hash must be 32 bytes")
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	v := sig[64]
	if v > 1 {
		return nil, errInvalidRecoveryID
	}
	x, y, err := recoverPublicKey(hash, r, s, v)
	if err != nil {
		return nil, err
	}
	return &ecdsa.PublicKey{Curve: s256, X: x, Y: y}, nil
}

// ValidateSignature verifies that the given signature (64 bytes, no V) is
// valid for the provided 65-byte uncompressed public key and 32-byte hash.
func ValidateSignature(pubkey, hash, sig []byte) bool {
	if len(sig) != 64 {
		return false
	}
	if len(hash) != 32 {
		return false
	}
	if len(pubkey) != 65 || pubkey[0] != 0x04 {
		return false
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	x := new(big.Int).SetBytes(pubkey[1:33])
	y := new(big.Int).SetBytes(pubkey[33:65])
	pub := &ecdsa.PublicKey{Curve: s256, X: x, Y: y}
	return ecdsa.Verify(pub, hash, r, s)
}

// ValidateSignatureValues checks r, s, v for validity per Homestead rules.
// If homestead is true, s must be in the lower half of the curve order.
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r == nil || s == nil {
		return false
	}
	if v > 1 {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1halfN) > 0 {
		return false
	}
	return true
}

// CompressPubkey compresses a 65-byte uncompressed public key to 33 bytes.
func CompressPubkey(pubkey *ecdsa.PublicKey) []byte {
	if pubkey == nil || pubkey.X == nil || pubkey.Y == nil {
		return nil
	}
	return elliptic.MarshalCompressed(s256, pubkey.X, pubkey.Y)
}

// DecompressPubkey decompresses a 33-byte compressed public key.
func DecompressPubkey(pubkey []byte) (*ecdsa.PublicKey, error) {
	if len(pubkey) != 33 {
		return nil, errors.New("crypto: invalid compressed public key length")
	}
	// elliptic.UnmarshalCompressed solves y^2 = x^3 - 3x + b for curves it
	// does not know, which is wrong for secp256k1 (a=0); use computeY.
	curve := s256.(*secp256k1Curve)
	x := new(big.Int).SetBytes(pubkey[1:])
	var y *big.Int
	if (pubkey[0] == 0x02 || pubkey[0] == 0x03) && x.Cmp(curve.p) < 0 {
		y = computeY(x, curve.p)
	}
	if y == nil {
		return nil, errors.New("crypto: invalid compressed public key")
	}
	if y.Bit(0) != uint(pubkey[0]&1) {
		y.Sub(curve.p, y)
	}
	return &ecdsa.PublicKey{Curve: s256, X: x, Y: y}, nil
}

// FromECDSAPub marshals a public key to 65-byte uncompressed format
// (leading 0x04, as required by spec.md's wire format).
func FromECDSAPub(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(pub.Curve, pub.X, pub.Y)
}

// UnmarshalPubkey parses a 65-byte uncompressed secp256k1 public key.
func UnmarshalPubkey(data []byte) (*ecdsa.PublicKey, error) {
	if len(data) != 65 || data[0] != 0x04 {
		return nil, ErrInvalidPublicKey
	}
	x := new(big.Int).SetBytes(data[1:33])
	y := new(big.Int).SetBytes(data[33:65])
	if !s256.(*secp256k1Curve).IsOnCurve(x, y) {
		return nil, ErrInvalidPublicKey
	}
	return &ecdsa.PublicKey{Curve: s256, X: x, Y: y}, nil
}

// ImportECDSA imports a private key from its raw 32-byte scalar.
func ImportECDSA(d []byte) (*ecdsa.PrivateKey, error) {
	if len(d) != 32 {
		return nil, errors.New("crypto: private key must be 32 bytes")
	}
	k := new(big.Int).SetBytes(d)
	if k.Sign() == 0 || k.Cmp(secp256k1N) >= 0 {
		return nil, errors.New("crypto: private key scalar out of range")
	}
	curve := s256.(*secp256k1Curve)
	x, y := curve.ScalarBaseMult(d)
	return &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{Curve: s256, X: x, Y: y},
		D:         k,
	}, nil
}
