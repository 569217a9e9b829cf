package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEnv(t *testing.T) {
	dotenvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { dotenvFile = ".env" })

	t.Setenv("TIPBOT_LEDGER_MODE", "rpc")
	t.Setenv("TIPBOT_CUSTODY_BACKEND", "postgres")
	t.Setenv("TIPBOT_PENDING_GRACE", "90s")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, LedgerRPC, cfg.LedgerMode)
	assert.Equal(t, CustodyPostgres, cfg.CustodyBackend)
	assert.Equal(t, 90*time.Second, cfg.PendingGrace)
	assert.Equal(t, ":50051", cfg.EndpointAddrGRPC)
}

func TestParseEnvDotenv(t *testing.T) {
	dir := t.TempDir()
	dotenvFile = filepath.Join(dir, ".env")
	t.Cleanup(func() { dotenvFile = ".env" })
	require.NoError(t, os.WriteFile(dotenvFile, []byte("TIPBOT_CLUSTER=testnet\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("TIPBOT_CLUSTER") })

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, "testnet", cfg.Cluster)
}

func TestParseEnvMalformedPanics(t *testing.T) {
	dotenvFile = filepath.Join(t.TempDir(), "missing.env")
	t.Cleanup(func() { dotenvFile = ".env" })
	t.Setenv("TIPBOT_PENDING_GRACE", "soon")

	assert.Panics(t, func() { parseEnv(&Config{}) })
}
