package config

import (
	"errors"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// envConfig lists the variables read from the environment. Unset variables
// leave the corresponding setting untouched.
type envConfig struct {
	EndpointAddrGRPC  string        `env:"TIPBOT_GRPC_ADDR"`
	EndpointAddrHTTP  string        `env:"TIPBOT_HTTP_ADDR"`
	SecretKey         string        `env:"TIPBOT_SECRET_KEY"`
	LedgerMode        string        `env:"TIPBOT_LEDGER_MODE"`
	RPCURL            string        `env:"TIPBOT_RPC_URL"`
	ProgramID         string        `env:"TIPBOT_PROGRAM_ID"`
	Mint              string        `env:"TIPBOT_MINT"`
	AuthorityKeyPath  string        `env:"TIPBOT_AUTHORITY_KEY"`
	Cluster           string        `env:"TIPBOT_CLUSTER"`
	CustodyBackend    string        `env:"TIPBOT_CUSTODY_BACKEND"`
	CustodyFile       string        `env:"TIPBOT_CUSTODY_FILE"`
	DatabaseDSN       string        `env:"TIPBOT_DATABASE_DSN"`
	S3AccessKey       string        `env:"TIPBOT_S3_ACCESS_KEY"`
	S3SecretKey       string        `env:"TIPBOT_S3_SECRET_KEY"`
	S3Bucket          string        `env:"TIPBOT_S3_BUCKET"`
	S3BaseEndpoint    string        `env:"TIPBOT_S3_ENDPOINT"`
	JournalPath       string        `env:"TIPBOT_JOURNAL"`
	PendingGrace      time.Duration `env:"TIPBOT_PENDING_GRACE"`
	ReconcileInterval time.Duration `env:"TIPBOT_RECONCILE_INTERVAL"`
	Env               string        `env:"TIPBOT_ENV"`
	LogFile           string        `env:"TIPBOT_LOG_FILE"`
	LogLevel          string        `env:"TIPBOT_LOG_LEVEL"`
}

// dotenvFile is loaded when present; existing variables take precedence.
var dotenvFile = ".env"

// parseEnv overlays environment variables, after loading dotenvFile if it
// exists. A malformed value panics.
func parseEnv(config *Config) {
	_ = godotenv.Load(dotenvFile)

	var e envConfig
	if err := envdecode.Decode(&e); err != nil {
		if errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return
		}
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, e.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, e.EndpointAddrHTTP)
	setString(&config.SecretKey, e.SecretKey)
	setString(&config.LedgerMode, e.LedgerMode)
	setString(&config.RPCURL, e.RPCURL)
	setString(&config.ProgramID, e.ProgramID)
	setString(&config.Mint, e.Mint)
	setString(&config.AuthorityKeyPath, e.AuthorityKeyPath)
	setString(&config.Cluster, e.Cluster)
	setString(&config.CustodyBackend, e.CustodyBackend)
	setString(&config.CustodyFile, e.CustodyFile)
	setString(&config.DatabaseDSN, e.DatabaseDSN)
	setString(&config.S3AccessKey, e.S3AccessKey)
	setString(&config.S3SecretKey, e.S3SecretKey)
	setString(&config.S3Bucket, e.S3Bucket)
	setString(&config.S3BaseEndpoint, e.S3BaseEndpoint)
	setString(&config.JournalPath, e.JournalPath)
	if e.PendingGrace > 0 {
		config.PendingGrace = e.PendingGrace
	}
	if e.ReconcileInterval > 0 {
		config.ReconcileInterval = e.ReconcileInterval
	}
	setString(&config.Env, e.Env)
	setString(&config.LogFile, e.LogFile)
	setString(&config.LogLevel, e.LogLevel)
}
