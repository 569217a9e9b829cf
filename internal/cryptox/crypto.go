// Package cryptox seals custodied private keys at rest.
//
// A key is derived from the operator passphrase with Argon2id using a fresh
// salt per record, and the key material is encrypted with AES-256-GCM.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"golang.org/x/crypto/argon2"
)

const (
	SaltSize  = 16
	NonceSize = 12
	KeySize   = 32
)

var (
	ErrEmptyPassphrase = errors.New("empty passphrase")
	ErrDecrypt         = errors.New("unable to open sealed data")
)

// DeriveMasterKey stretches password into a 32-byte AES key.
func DeriveMasterKey(password []byte, salt []byte) []byte {
	return argon2.IDKey(password, salt, 1, 64*1024, 4, KeySize)
}

// Encrypt seals plaintext with AES-GCM under key using nonce.
func Encrypt(plaintext, key, nonce []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("nonce must be %d bytes, got %d", aesgcm.NonceSize(), len(nonce))
	}
	return aesgcm.Seal(nil, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Authentication failures return ErrDecrypt.
func Decrypt(ciphertext, key, nonce []byte) ([]byte, error) {
	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(nonce) != aesgcm.NonceSize() {
		return nil, fmt.Errorf("%w: bad nonce length %d", ErrDecrypt, len(nonce))
	}
	plaintext, err := aesgcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Sealed is an encrypted blob together with the parameters needed to open it.
type Sealed struct {
	Ciphertext []byte
	Salt       []byte
	Nonce      []byte
}

// Sealer encrypts and decrypts key material under one passphrase.
type Sealer struct {
	passphrase []byte
}

// NewSealer copies passphrase; the caller may wipe its own copy afterwards.
func NewSealer(passphrase []byte) (*Sealer, error) {
	if len(passphrase) == 0 {
		return nil, ErrEmptyPassphrase
	}
	return &Sealer{passphrase: append([]byte(nil), passphrase...)}, nil
}

// Seal encrypts plaintext with a fresh salt and nonce.
func (s *Sealer) Seal(plaintext []byte) (Sealed, error) {
	salt := common.GenerateRandByteArray(SaltSize)
	nonce := common.GenerateRandByteArray(NonceSize)

	key := DeriveMasterKey(s.passphrase, salt)
	defer common.WipeByteArray(key)

	ct, err := Encrypt(plaintext, key, nonce)
	if err != nil {
		return Sealed{}, err
	}
	return Sealed{Ciphertext: ct, Salt: salt, Nonce: nonce}, nil
}

// Open decrypts a blob produced by Seal. The returned slice should be wiped
// by the caller.
func (s *Sealer) Open(sealed Sealed) ([]byte, error) {
	key := DeriveMasterKey(s.passphrase, sealed.Salt)
	defer common.WipeByteArray(key)
	return Decrypt(sealed.Ciphertext, key, sealed.Nonce)
}

// Wipe zeroes the passphrase. The sealer is unusable afterwards.
func (s *Sealer) Wipe() {
	common.WipeByteArray(s.passphrase)
	s.passphrase = nil
}
