package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cli.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseJson(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("overlays set fields only", func(t *testing.T) {
		path := writeConfigFile(t, `{
			"server_endpoint_addr": "tipbot.prod:50051",
			"online_check_interval": "10s",
			"token_validity": 60000000000
		}`)
		os.Args = []string{"tipbot-cli", "-config", path}

		var cfg Config
		cfg.LoadDefaults()
		parseJson(&cfg)

		assert.Equal(t, "tipbot.prod:50051", cfg.ServerEndpointAddr)
		assert.Equal(t, 10*time.Second, cfg.OnlineCheckInterval)
		assert.Equal(t, time.Minute, cfg.TokenValidity)
		assert.Equal(t, "operator", cfg.Operator)
		assert.Equal(t, "TIPBOT_SECRET_KEY", cfg.SecretKeyEnv)
	})

	t.Run("secret env name", func(t *testing.T) {
		path := writeConfigFile(t, `{"secret_key_env": "OPS_TIPBOT_SECRET"}`)
		os.Args = []string{"tipbot-cli", "-c", path}

		var cfg Config
		parseJson(&cfg)

		assert.Equal(t, "OPS_TIPBOT_SECRET", cfg.SecretKeyEnv)
	})

	t.Run("no file flag", func(t *testing.T) {
		os.Args = []string{"tipbot-cli", "-u", "oncall"}

		cfg := Config{ServerEndpointAddr: "keep:1"}
		parseJson(&cfg)

		assert.Equal(t, Config{ServerEndpointAddr: "keep:1"}, cfg)
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"tipbot-cli", "-c", filepath.Join(t.TempDir(), "absent.json")}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("invalid json panics", func(t *testing.T) {
		os.Args = []string{"tipbot-cli", "-c", writeConfigFile(t, `{"operator":`)}
		assert.Panics(t, func() { parseJson(&Config{}) })
	})
}
