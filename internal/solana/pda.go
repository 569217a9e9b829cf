package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tipbot/internal/common"
)

const (
	MaxSeedLength = 32
	MaxSeeds      = 16
)

const pdaMarker = "ProgramDerivedAddress"

var ErrOnCurve = errors.New("derived address is on the ed25519 curve")

var isOnCurve = func(pk PublicKey) bool { return pk.IsOnCurve() }

// CreateProgramAddress hashes seeds, the program id and the PDA marker. It
// fails with ErrOnCurve when the result is a valid ed25519 point.
func CreateProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, error) {
	if len(seeds) > MaxSeeds {
		return PublicKey{}, fmt.Errorf("%w: too many seeds (%d)", common.ErrValidation, len(seeds))
	}

	h := sha256.New()
	for _, s := range seeds {
		if len(s) > MaxSeedLength {
			return PublicKey{}, fmt.Errorf("%w: seed longer than %d bytes", common.ErrValidation, MaxSeedLength)
		}
		h.Write(s)
	}
	h.Write(programID[:])
	h.Write([]byte(pdaMarker))

	var pk PublicKey
	copy(pk[:], h.Sum(nil))
	if isOnCurve(pk) {
		return PublicKey{}, ErrOnCurve
	}
	return pk, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address together with its bump.
func FindProgramAddress(seeds [][]byte, programID PublicKey) (PublicKey, uint8, error) {
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)

	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateProgramAddress(withBump, programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return PublicKey{}, 0, err
		}
	}
	return PublicKey{}, 0, common.ErrDerivationExhausted
}

// FindAssociatedTokenAddress derives the canonical token account of owner for mint.
func FindAssociatedTokenAddress(owner, mint PublicKey) (PublicKey, uint8, error) {
	return FindProgramAddress([][]byte{owner[:], TokenProgramID[:], mint[:]}, AssociatedTokenProgramID)
}
