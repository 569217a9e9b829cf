package derive

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dmitrijs2005/tipbot/internal/common"
	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	program = solana.MustPublicKeyFromBase58("JDj9z4vXUj46cRX4UmnfLgV2fGNw2Qnjewr5qzgeHrSo")
	mint    = solana.MustPublicKeyFromBase58("4zMMC9srt5Ri5X14GAgXhaHii3GnPAEERYPJgZJDncDU")
)

func newDeriver(t *testing.T) *Deriver {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	return NewDeriver(program, kp.PublicKey(), mint)
}

func TestNamespacesArePrefixFree(t *testing.T) {
	assert.True(t, PrefixFree(Namespaces))
	assert.False(t, PrefixFree([]string{"user", "username"}))
}

func TestDeriver_Idempotent(t *testing.T) {
	d := newDeriver(t)
	fresh := NewDeriver(d.Program(), d.Authority(), d.Mint())

	a, err := d.All("alice")
	require.NoError(t, err)
	b, err := fresh.All("alice")
	require.NoError(t, err)

	assert.Equal(t, a.Master.Address, b.Master.Address)
	assert.Equal(t, a.User.Address, b.User.Address)
	assert.Equal(t, a.User.Bump, b.User.Bump)
	assert.Equal(t, a.Token.Address, b.Token.Address)
	assert.Equal(t, a.Escrow.Address, b.Escrow.Address)
	assert.Equal(t, a.EscrowToken, b.EscrowToken)
}

func TestDeriver_NoCollisionsAcrossHandlesAndNamespaces(t *testing.T) {
	d := newDeriver(t)
	seen := map[solana.PublicKey]string{}

	master, err := d.Master()
	require.NoError(t, err)
	seen[master.Address] = "master"

	for i := 0; i < 25; i++ {
		h := fmt.Sprintf("user_%d", i)
		s, err := d.All(h)
		require.NoError(t, err)
		for name, addr := range map[string]solana.PublicKey{
			"user":         s.User.Address,
			"token":        s.Token.Address,
			"escrow":       s.Escrow.Address,
			"escrow_token": s.EscrowToken,
		} {
			label := name + "/" + h
			prev, dup := seen[addr]
			require.False(t, dup, "%s collides with %s", label, prev)
			seen[addr] = label
		}
	}
}

func TestDeriver_SeedLayout(t *testing.T) {
	d := newDeriver(t)
	master, err := d.Master()
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("master_wallet"), d.Authority().Bytes()}, master.Seeds)

	user, err := d.User("alice")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("user"), []byte("alice"), master.Address.Bytes()}, user.Seeds)
	assert.Equal(t, master.Address, user.Authority)

	token, err := d.Token("alice")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("token"), user.Address.Bytes()}, token.Seeds)

	escrow, err := d.Escrow("alice")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("escrow"), []byte("alice"), master.Address.Bytes()}, escrow.Seeds)

	addr, err := solana.CreateProgramAddress(append(user.Seeds, []byte{user.Bump}), program)
	require.NoError(t, err)
	assert.Equal(t, user.Address, addr)
}

func TestDeriver_EscrowTokenIsAssociatedAccount(t *testing.T) {
	d := newDeriver(t)
	escrow, err := d.Escrow("bob")
	require.NoError(t, err)

	got, err := d.EscrowToken("bob")
	require.NoError(t, err)
	want, err := d.AssociatedToken(escrow.Address)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDeriver_UserAndEscrowDiffer(t *testing.T) {
	d := newDeriver(t)
	u, err := d.User("carol")
	require.NoError(t, err)
	e, err := d.Escrow("carol")
	require.NoError(t, err)
	assert.NotEqual(t, u.Address, e.Address)
}

func TestDeriver_ConcurrentUse(t *testing.T) {
	d := newDeriver(t)
	want, err := NewDeriver(d.Program(), d.Authority(), d.Mint()).User("dave")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := d.User("dave")
			assert.NoError(t, err)
			assert.Equal(t, want.Address, got.Address)
		}()
	}
	wg.Wait()
}

func TestDerive_SeedTooLong(t *testing.T) {
	d := newDeriver(t)
	_, err := Derive(program, TagUser, [][]byte{[]byte("this_handle_is_definitely_longer_than_32")}, d.Authority())
	require.Error(t, err)
}

func TestDeriver_NormalizesHandles(t *testing.T) {
	d := newDeriver(t)
	want, err := d.All("bob")
	require.NoError(t, err)

	for _, raw := range []string{"@Bob", " BOB ", "@bob"} {
		got, err := d.All(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	for _, raw := range []string{"", "@", "bob smith", "this_handle_is_definitely_longer_than_32"} {
		_, err := d.User(raw)
		assert.ErrorIs(t, err, common.ErrValidation, raw)
		_, err = d.Token(raw)
		assert.ErrorIs(t, err, common.ErrValidation, raw)
		_, err = d.Escrow(raw)
		assert.ErrorIs(t, err, common.ErrValidation, raw)
	}
}

func TestDerive_ExhaustedSearchIsWrapped(t *testing.T) {
	saved := findProgramAddress
	t.Cleanup(func() { findProgramAddress = saved })
	findProgramAddress = func([][]byte, solana.PublicKey) (solana.PublicKey, uint8, error) {
		return solana.PublicKey{}, 0, common.ErrDerivationExhausted
	}

	d := newDeriver(t)
	_, err := d.User("alice")
	require.ErrorIs(t, err, common.ErrDerivationExhausted)
	assert.ErrorContains(t, err, "derive master_wallet")

	_, err = Derive(program, TagEscrow, [][]byte{[]byte("alice")}, d.Authority())
	require.ErrorIs(t, err, common.ErrDerivationExhausted)
	assert.ErrorContains(t, err, "derive escrow")
}
