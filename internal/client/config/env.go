package config

import (
	"errors"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

type envConfig struct {
	ServerEndpointAddr string        `env:"TIPBOT_SERVER_ADDR"`
	Operator           string        `env:"TIPBOT_OPERATOR"`
	TokenValidity      time.Duration `env:"TIPBOT_TOKEN_VALIDITY"`
}

// dotenvFile is loaded when present; variables already set win.
var dotenvFile = ".env"

// parseEnv overlays the TIPBOT_* variables. A malformed duration panics.
func parseEnv(cfg *Config) {
	_ = godotenv.Load(dotenvFile)

	var e envConfig
	if err := envdecode.Decode(&e); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return
		}
		panic(err)
	}

	if e.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = e.ServerEndpointAddr
	}
	if e.Operator != "" {
		cfg.Operator = e.Operator
	}
	if e.TokenValidity > 0 {
		cfg.TokenValidity = e.TokenValidity
	}
}
