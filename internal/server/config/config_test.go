package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, ":50051", c.EndpointAddrGRPC)
	assert.Equal(t, ":9090", c.EndpointAddrHTTP)
	assert.Equal(t, "secretKey", c.SecretKey)
	assert.Equal(t, 15*time.Minute, c.AccessTokenValidityDuration)
	assert.Equal(t, LedgerMemory, c.LedgerMode)
	assert.Equal(t, CustodyFile, c.CustodyBackend)
	assert.Equal(t, "devnet", c.Cluster)
	assert.Equal(t, uint64(10_000_000), c.RegistrationFunding)
	assert.Equal(t, 5*time.Minute, c.PendingGrace)
	assert.Equal(t, "TIPBOT_PASSPHRASE", c.PassphraseEnv)
	assert.NoError(t, c.Validate())
}

func TestLoadConfig_UsesDefaultsBeforeParsing(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })
	os.Args = []string{"testbin"}
	dotenvFile = "does-not-exist.env"
	t.Cleanup(func() { dotenvFile = ".env" })

	c := LoadConfig()
	require.NotNil(t, c, "LoadConfig must not return nil")

	var want Config
	want.LoadDefaults()
	assert.Equal(t, want.EndpointAddrGRPC, c.EndpointAddrGRPC)
	assert.Equal(t, want.CustodyFile, c.CustodyFile)
	assert.Equal(t, want.JournalPath, c.JournalPath)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"ledger mode", func(c *Config) { c.LedgerMode = "carrier-pigeon" }},
		{"custody backend", func(c *Config) { c.CustodyBackend = "floppy" }},
		{"secret", func(c *Config) { c.SecretKey = "" }},
		{"passphrase env", func(c *Config) { c.PassphraseEnv = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
