package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// Config is what the operator CLI needs to reach the server and mint its own
// access tokens. The token secret is not stored here; SecretKeyEnv names the
// variable that holds it.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	Operator            string
	SecretKeyEnv        string
	TokenValidity       time.Duration
}

func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.Operator = "operator"
	c.SecretKeyEnv = "TIPBOT_SECRET_KEY"
	c.TokenValidity = 5 * time.Minute
}

// Validate rejects settings the CLI cannot work with.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.ServerEndpointAddr); err != nil {
		return fmt.Errorf("server address %q: %w", c.ServerEndpointAddr, err)
	}
	if c.OnlineCheckInterval <= 0 {
		return errors.New("online check interval must be positive")
	}
	if c.Operator == "" {
		return errors.New("operator name is required")
	}
	if c.TokenValidity < time.Second {
		return errors.New("token validity must be at least one second")
	}
	return nil
}

// LoadConfig layers defaults, the JSON file, the environment and flags, in
// that order; each later layer overrides the earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
