package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/tipbot/internal/flagx"
	"github.com/dmitrijs2005/tipbot/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Intervals may
// be strings like "3s" or integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	Operator            string         `json:"operator"`
	SecretKeyEnv        string         `json:"secret_key_env"`
	TokenValidity       timex.Duration `json:"token_validity"`
}

// parseJson overlays Config with values from the file named by -c or
// -config. Read or unmarshal errors panic. Empty values are ignored.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.Operator != "" {
		cfg.Operator = jc.Operator
	}
	if jc.SecretKeyEnv != "" {
		cfg.SecretKeyEnv = jc.SecretKeyEnv
	}
	if jc.TokenValidity.Duration > 0 {
		cfg.TokenValidity = jc.TokenValidity.Duration
	}
}
