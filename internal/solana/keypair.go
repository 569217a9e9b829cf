package solana

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/tipbot/internal/common"
)

// Signer can produce signatures for a single public key without exposing the
// private key.
type Signer interface {
	PublicKey() PublicKey
	Sign(message []byte) (Signature, error)
}

// Keypair is an ed25519 key pair held in memory.
type Keypair struct {
	priv ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (*Keypair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return &Keypair{priv: priv}, nil
}

// KeypairFromBytes accepts the 64-byte seed||public form used by Solana
// tooling. The public half is checked against the seed.
func KeypairFromBytes(b []byte) (*Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid private key length %d", len(b))
	}
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if string(priv[ed25519.SeedSize:]) != string(b[ed25519.SeedSize:]) {
		common.WipeByteArray(priv)
		return nil, fmt.Errorf("public key does not match seed")
	}
	return &Keypair{priv: priv}, nil
}

// LoadKeypairFile reads a key file in the CLI format: a JSON array of 64 bytes.
func LoadKeypairFile(path string) (*Keypair, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keypair: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(raw, &ints); err != nil {
		return nil, fmt.Errorf("parse keypair: %w", err)
	}
	b := make([]byte, len(ints))
	defer common.WipeByteArray(b)
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, fmt.Errorf("parse keypair: byte %d out of range", i)
		}
		b[i] = byte(v)
	}
	return KeypairFromBytes(b)
}

func (k *Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv.Public().(ed25519.PublicKey))
	return pk
}

func (k *Keypair) Sign(message []byte) (Signature, error) {
	var sig Signature
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig, nil
}

// Bytes returns a copy of the 64-byte private key. Callers must wipe it.
func (k *Keypair) Bytes() []byte {
	b := make([]byte, len(k.priv))
	copy(b, k.priv)
	return b
}

// Wipe zeroes the private key in place.
func (k *Keypair) Wipe() {
	common.WipeByteArray(k.priv)
}

// Verify checks an ed25519 signature over message.
func Verify(pub PublicKey, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), message, sig[:])
}
