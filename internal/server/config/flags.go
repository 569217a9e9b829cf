package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/tipbot/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   gRPC bind address (e.g., ":50051")
//	-m string   metrics/health HTTP bind address
//	-s string   access token HMAC secret
//	-t int      access token validity, minutes
//	-l string   ledger mode: rpc or memory
//	-r string   RPC node URL
//	-p string   program id
//	-n string   token mint
//	-k string   authority keypair file
//	-w string   cluster name used in explorer links
//	-b string   custody backend: file, s3 or postgres
//	-f string   custody snapshot file
//	-d string   PostgreSQL DSN
//	-j string   journal file
//	-o string   log file (rotated)
//
// Only recognized flags are parsed; os.Args is filtered with flagx.FilterArgs
// first so other components can define their own flags.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-s", "-t", "-l", "-r", "-p", "-n", "-k", "-w", "-b", "-f", "-d", "-j", "-o",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run gRPC server")
	fs.StringVar(&config.EndpointAddrHTTP, "m", config.EndpointAddrHTTP, "address and port to serve metrics")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")

	fs.StringVar(&config.LedgerMode, "l", config.LedgerMode, "ledger mode (rpc|memory)")
	fs.StringVar(&config.RPCURL, "r", config.RPCURL, "RPC node URL")
	fs.StringVar(&config.ProgramID, "p", config.ProgramID, "program id")
	fs.StringVar(&config.Mint, "n", config.Mint, "token mint")
	fs.StringVar(&config.AuthorityKeyPath, "k", config.AuthorityKeyPath, "authority keypair file")
	fs.StringVar(&config.Cluster, "w", config.Cluster, "cluster name")

	fs.StringVar(&config.CustodyBackend, "b", config.CustodyBackend, "custody backend (file|s3|postgres)")
	fs.StringVar(&config.CustodyFile, "f", config.CustodyFile, "custody snapshot file")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.JournalPath, "j", config.JournalPath, "journal file")
	fs.StringVar(&config.LogFile, "o", config.LogFile, "log file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
}
