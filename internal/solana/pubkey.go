// Package solana holds the ledger primitives the tip engine needs: keys,
// program-derived addresses, instructions and legacy transaction encoding.
package solana

import (
	"bytes"
	"encoding/json"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeyLength is the size of an ed25519 public key and of every address.
const PublicKeyLength = 32

// PublicKey is a 32-byte account address, rendered in base58.
type PublicKey [PublicKeyLength]byte

var (
	SystemProgramID          = MustPublicKeyFromBase58("11111111111111111111111111111111")
	TokenProgramID           = MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	AssociatedTokenProgramID = MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SysvarRentID             = MustPublicKeyFromBase58("SysvarRent111111111111111111111111111111111")
)

// PublicKeyFromBase58 parses a base58 address.
func PublicKeyFromBase58(s string) (PublicKey, error) {
	var pk PublicKey
	b, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("decode base58 %q: %w", s, err)
	}
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key length %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

// MustPublicKeyFromBase58 is PublicKeyFromBase58 for package-level constants.
func MustPublicKeyFromBase58(s string) PublicKey {
	pk, err := PublicKeyFromBase58(s)
	if err != nil {
		panic(err)
	}
	return pk
}

// PublicKeyFromBytes copies a 32-byte slice into a PublicKey.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk PublicKey
	if len(b) != PublicKeyLength {
		return pk, fmt.Errorf("invalid public key length %d", len(b))
	}
	copy(pk[:], b)
	return pk, nil
}

func (p PublicKey) String() string {
	return base58.Encode(p[:])
}

func (p PublicKey) Bytes() []byte {
	b := make([]byte, PublicKeyLength)
	copy(b, p[:])
	return b
}

func (p PublicKey) IsZero() bool {
	return p == PublicKey{}
}

func (p PublicKey) Equals(o PublicKey) bool {
	return bytes.Equal(p[:], o[:])
}

// IsOnCurve reports whether the bytes decode to a point on ed25519. Program
// derived addresses are required to be off the curve so no private key exists.
func (p PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(p[:])
	return err == nil
}

func (p PublicKey) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PublicKey) UnmarshalText(b []byte) error {
	pk, err := PublicKeyFromBase58(string(b))
	if err != nil {
		return err
	}
	*p = pk
	return nil
}

// Hash is a 32-byte blockhash.
type Hash [32]byte

func HashFromBase58(s string) (Hash, error) {
	pk, err := PublicKeyFromBase58(s)
	return Hash(pk), err
}

func (h Hash) String() string {
	return base58.Encode(h[:])
}

func (h Hash) MarshalJSON() ([]byte, error) {
	return json.Marshal(h.String())
}

// Signature is a 64-byte ed25519 signature. Its base58 form is the
// transaction id.
type Signature [64]byte

func SignatureFromBase58(s string) (Signature, error) {
	var sig Signature
	b, err := base58.Decode(s)
	if err != nil {
		return sig, fmt.Errorf("decode base58 signature: %w", err)
	}
	if len(b) != len(sig) {
		return sig, fmt.Errorf("invalid signature length %d", len(b))
	}
	copy(sig[:], b)
	return sig, nil
}

func (s Signature) String() string {
	return base58.Encode(s[:])
}

func (s Signature) IsZero() bool {
	return s == Signature{}
}
