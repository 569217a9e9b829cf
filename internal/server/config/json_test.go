package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, dir, name string, data map[string]any) string {
	t.Helper()
	if dir == "" {
		dir = t.TempDir()
	}
	if name == "" {
		name = "cfg.json"
	}
	path := filepath.Join(dir, name)
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func Test_parseJson_SourcesAndPrecedence(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	dir := t.TempDir()
	pathFlag := writeTempJSON(t, dir, "flag.json", map[string]any{
		"endpoint_addr_grpc":             "www.example:9000",
		"secret_key":                     "my_secret_key",
		"access_token_validity_duration": "2m",
		"ledger_mode":                    "rpc",
		"rpc_url":                        "http://node:8899",
		"rpc_requests_per_sec":           25,
		"custody_backend":                "s3",
		"s3_bucket":                      "bucket",
		"s3_access_key":                  "ak",
		"registration_funding":           5000000,
		"pending_grace":                  "10m",
		"reconcile_interval":             1000000000,
	})

	t.Run("loads from json", func(t *testing.T) {
		os.Args = []string{"testbin", "-config", pathFlag}

		cfg := &Config{}
		cfg.LoadDefaults()
		parseJson(cfg)

		assert.Equal(t, "www.example:9000", cfg.EndpointAddrGRPC)
		assert.Equal(t, "my_secret_key", cfg.SecretKey)
		assert.Equal(t, 2*time.Minute, cfg.AccessTokenValidityDuration)
		assert.Equal(t, LedgerRPC, cfg.LedgerMode)
		assert.Equal(t, "http://node:8899", cfg.RPCURL)
		assert.Equal(t, 25.0, cfg.RPCRequestsPerSec)
		assert.Equal(t, CustodyS3, cfg.CustodyBackend)
		assert.Equal(t, "bucket", cfg.S3Bucket)
		assert.Equal(t, "ak", cfg.S3AccessKey)
		assert.Equal(t, uint64(5_000_000), cfg.RegistrationFunding)
		assert.Equal(t, 10*time.Minute, cfg.PendingGrace)
		assert.Equal(t, time.Second, cfg.ReconcileInterval)
		assert.Equal(t, ":9090", cfg.EndpointAddrHTTP, "absent keys keep defaults")
	})

	t.Run("no config flag leaves config untouched", func(t *testing.T) {
		os.Args = []string{"testbin"}

		cfg := &Config{EndpointAddrGRPC: "defaults:1234", SecretKey: "key", PendingGrace: time.Minute}
		parseJson(cfg)

		assert.Equal(t, "defaults:1234", cfg.EndpointAddrGRPC)
		assert.Equal(t, "key", cfg.SecretKey)
		assert.Equal(t, time.Minute, cfg.PendingGrace)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(dir, "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ this is not valid json`), 0o600))

		os.Args = []string{"testbin", "-config", bad}
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(dir, "nope.json")}
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}
