package crypto

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Scheme names a supported signature scheme.
type Scheme int

const (
	SchemeEd25519 Scheme = iota
	SchemeSecp256k1
)

func (s Scheme) String() string {
	switch s {
	case SchemeEd25519:
		return "ed25519"
	case SchemeSecp256k1:
		return "secp256k1"
	default:
		return "unknown"
	}
}

// Errors returned by signing and verification.
var (
	ErrUnknownScheme  = errors.New("crypto: unknown signature scheme")
	ErrSchemeMismatch = errors.New("crypto: signature scheme does not match public key")
	ErrInvalidKeySize = errors.New("crypto: invalid key size for scheme")
)

// Signature is a scheme-tagged signature value.
type Signature struct {
	Scheme Scheme
	Bytes  []byte
}

// Sign produces a Signature over msg using privateKey under scheme.
// For Secp256k1 the message is first hashed with the default hash
// algorithm (Ethereum-style); Ed25519 signs the raw message bytes.
func Sign(scheme Scheme, privateKey, msg []byte) (Signature, error) {
	switch scheme {
	case SchemeEd25519:
		if len(privateKey) != ed25519.PrivateKeySize {
			return Signature{}, fmt.Errorf("%w: ed25519 wants %d bytes, got %d", ErrInvalidKeySize, ed25519.PrivateKeySize, len(privateKey))
		}
		sig := ed25519.Sign(ed25519.PrivateKey(privateKey), msg)
		return Signature{Scheme: scheme, Bytes: sig}, nil
	case SchemeSecp256k1:
		digest := HashBytes(msg)
		priv, err := ethcrypto.ToECDSA(privateKey)
		if err != nil {
			return Signature{}, fmt.Errorf("crypto: invalid secp256k1 private key: %w", err)
		}
		sig, err := ethcrypto.Sign(digest[:], priv)
		if err != nil {
			return Signature{}, fmt.Errorf("crypto: secp256k1 sign failed: %w", err)
		}
		return Signature{Scheme: scheme, Bytes: sig}, nil
	default:
		return Signature{}, ErrUnknownScheme
	}
}

// Verify checks sig over msg against publicKey. It fails with
// ErrSchemeMismatch if sig.Scheme does not correspond to the shape of
// publicKey (a secp256k1-shaped recoverable signature checked as
// Ed25519, or vice versa).
func Verify(sig Signature, publicKey, msg []byte) (bool, error) {
	switch sig.Scheme {
	case SchemeEd25519:
		if len(publicKey) != ed25519.PublicKeySize {
			return false, fmt.Errorf("%w: ed25519 wants %d bytes, got %d", ErrSchemeMismatch, ed25519.PublicKeySize, len(publicKey))
		}
		return ed25519.Verify(ed25519.PublicKey(publicKey), msg, sig.Bytes), nil
	case SchemeSecp256k1:
		if len(publicKey) != 33 && len(publicKey) != 65 {
			return false, fmt.Errorf("%w: secp256k1 wants a 33 or 65 byte public key, got %d", ErrSchemeMismatch, len(publicKey))
		}
		digest := HashBytes(msg)
		// sig may carry the recovery byte (65 bytes); VerifySignature
		// wants just the 64-byte r||s form.
		rs := sig.Bytes
		if len(rs) == 65 {
			rs = rs[:64]
		}
		return ethcrypto.VerifySignature(publicKey, digest[:], rs), nil
	default:
		return false, ErrUnknownScheme
	}
}

// RecoverSecp256k1PublicKey recovers the uncompressed public key that
// produced sig over msg. Only meaningful for SchemeSecp256k1 recoverable
// signatures (65 bytes, trailing recovery id).
func RecoverSecp256k1PublicKey(sig Signature, msg []byte) ([]byte, error) {
	if sig.Scheme != SchemeSecp256k1 {
		return nil, ErrSchemeMismatch
	}
	digest := HashBytes(msg)
	pub, err := ethcrypto.Ecrecover(digest[:], sig.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: secp256k1 recover failed: %w", err)
	}
	return pub, nil
}

// DeriveAddress computes the node address for a public key: the low
// 20 bytes of hash(publicKey).
func DeriveAddress(publicKey []byte) Address {
	h := HashBytes(publicKey)
	var a Address
	copy(a[:], h[HashSize-AddressSize:])
	return a
}
