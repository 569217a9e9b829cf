package solana

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicKey_Base58RoundTrip(t *testing.T) {
	assert.True(t, SystemProgramID.IsZero())
	assert.Equal(t, "11111111111111111111111111111111", SystemProgramID.String())

	got, err := PublicKeyFromBase58(TokenProgramID.String())
	require.NoError(t, err)
	assert.Equal(t, TokenProgramID, got)
}

func TestPublicKeyFromBase58_Errors(t *testing.T) {
	_, err := PublicKeyFromBase58("0OIl")
	require.Error(t, err, "characters outside the alphabet")

	_, err = PublicKeyFromBase58("2")
	require.Error(t, err, "wrong length")

	require.Panics(t, func() { MustPublicKeyFromBase58("bad!") })
}

func TestPublicKey_JSONUsesBase58(t *testing.T) {
	type wrap struct {
		Key PublicKey `json:"key"`
	}
	b, err := json.Marshal(wrap{Key: TokenProgramID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"}`, string(b))

	var back wrap
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, TokenProgramID, back.Key)
}

func TestPublicKey_IsOnCurve(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	assert.True(t, kp.PublicKey().IsOnCurve(), "real ed25519 keys are on the curve")
}

func TestSignature_Base58RoundTrip(t *testing.T) {
	kp, err := NewKeypair()
	require.NoError(t, err)
	sig, err := kp.Sign([]byte("msg"))
	require.NoError(t, err)

	back, err := SignatureFromBase58(sig.String())
	require.NoError(t, err)
	assert.Equal(t, sig, back)

	_, err = SignatureFromBase58(TokenProgramID.String())
	require.Error(t, err)
}
