// Package config loads runtime configuration for the tipbot operator CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Environment: TIPBOT_SERVER_ADDR, TIPBOT_OPERATOR and
//     TIPBOT_TOKEN_VALIDITY, after loading a .env file when one exists.
//  4. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the server gRPC endpoint
//	-i int      online status check interval (seconds)
//	-u string   operator name put into access tokens
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "3s",
//	  "operator": "ops",
//	  "secret_key_env": "TIPBOT_SECRET_KEY",
//	  "token_validity": "5m"
//	}
//
// The token secret itself is never part of the config; it is read from the
// variable named by SecretKeyEnv or prompted for.
package config
