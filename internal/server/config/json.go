package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/flagx"
	"github.com/dmitrijs2005/tipbot/internal/timex"
)

// JsonConfig is the on-disk shape of the optional config file. Durations use
// timex.Duration so both "30s" and integer nanoseconds are accepted. Empty
// values leave the current setting untouched.
type JsonConfig struct {
	EndpointAddrGRPC            string         `json:"endpoint_addr_grpc"`
	EndpointAddrHTTP            string         `json:"endpoint_addr_http"`
	SecretKey                   string         `json:"secret_key"`
	AccessTokenValidityDuration timex.Duration `json:"access_token_validity_duration"`

	LedgerMode        string  `json:"ledger_mode"`
	RPCURL            string  `json:"rpc_url"`
	RPCRequestsPerSec float64 `json:"rpc_requests_per_sec"`
	Commitment        string  `json:"commitment"`
	ProgramID         string  `json:"program_id"`
	Mint              string  `json:"mint"`
	AuthorityKeyPath  string  `json:"authority_key_path"`
	Cluster           string  `json:"cluster"`

	CustodyBackend string `json:"custody_backend"`
	CustodyFile    string `json:"custody_file"`
	DatabaseDSN    string `json:"database_dsn"`
	S3AccessKey    string `json:"s3_access_key"`
	S3SecretKey    string `json:"s3_secret_key"`
	S3Bucket       string `json:"s3_bucket"`
	S3Key          string `json:"s3_key"`
	S3Region       string `json:"s3_region"`
	S3BaseEndpoint string `json:"s3_base_endpoint"`
	PassphraseEnv  string `json:"passphrase_env"`

	JournalPath         string         `json:"journal_path"`
	RegistrationFunding uint64         `json:"registration_funding"`
	PendingGrace        timex.Duration `json:"pending_grace"`
	ReconcileInterval   timex.Duration `json:"reconcile_interval"`

	Env      string `json:"env"`
	LogFile  string `json:"log_file"`
	LogLevel string `json:"log_level"`
}

// parseJson loads the file named by -c or -config into config. Without the
// flag nothing is loaded. An unreadable file or invalid JSON panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.ConfigPath(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.SecretKey, c.SecretKey)
	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)

	setString(&config.LedgerMode, c.LedgerMode)
	setString(&config.RPCURL, c.RPCURL)
	if c.RPCRequestsPerSec > 0 {
		config.RPCRequestsPerSec = c.RPCRequestsPerSec
	}
	setString(&config.Commitment, c.Commitment)
	setString(&config.ProgramID, c.ProgramID)
	setString(&config.Mint, c.Mint)
	setString(&config.AuthorityKeyPath, c.AuthorityKeyPath)
	setString(&config.Cluster, c.Cluster)

	setString(&config.CustodyBackend, c.CustodyBackend)
	setString(&config.CustodyFile, c.CustodyFile)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Key, c.S3Key)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.PassphraseEnv, c.PassphraseEnv)

	setString(&config.JournalPath, c.JournalPath)
	if c.RegistrationFunding > 0 {
		config.RegistrationFunding = c.RegistrationFunding
	}
	setDuration(&config.PendingGrace, c.PendingGrace)
	setDuration(&config.ReconcileInterval, c.ReconcileInterval)

	setString(&config.Env, c.Env)
	setString(&config.LogFile, c.LogFile)
	setString(&config.LogLevel, c.LogLevel)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v timex.Duration) {
	if v.Duration > 0 {
		*dst = v.Duration
	}
}
