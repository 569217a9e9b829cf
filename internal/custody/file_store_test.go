package custody

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/solana"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(t *testing.T) []Record {
	t.Helper()
	kp, err := solana.NewKeypair()
	require.NoError(t, err)
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []Record{
		{Handle: "alice", PublicID: kp.PublicKey(), EncryptedKey: []byte{1, 2}, Salt: []byte{3}, Nonce: []byte{4}, Registered: true, CreatedAt: ts, UpdatedAt: ts},
		{Handle: "bob", PublicID: kp.PublicKey(), CreatedAt: ts, UpdatedAt: ts},
	}
}

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "none.json"))
	recs, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestFileStore_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "custody.json")
	s := NewFileStore(path)
	want := sampleRecords(t)

	require.NoError(t, s.Save(context.Background(), want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("records mismatch (-want +got):\n%s", diff)
	}
}

func TestFileStore_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custody.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":9,"records":[]}`), 0o600))
	_, err = NewFileStore(path).Load(context.Background())
	assert.ErrorContains(t, err, "version 9")
}
