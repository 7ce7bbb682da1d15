package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/domainx/internal/flagx"
)

var knownFlags = []string{"-a", "-m", "-d", "-s", "-t", "-e", "-f"}

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags:
//
//	-a string     HTTP bind address (e.g. ":8080")
//	-m string     metrics bind address, empty disables it
//	-d string     database DSN
//	-s string     JWT secret key
//	-t duration   session token lifetime (e.g. "24h")
//	-e string     environment, "prod" enables production checks
//	-f string     frontend URL used in email links
//
// Arguments are first filtered down to the flags handled here, so binaries
// may accept their own flags too.
func parseFlags(config *Config, args []string) error {
	args = flagx.FilterArgs(args, knownFlags)

	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&config.HTTPAddr, "a", config.HTTPAddr, "address and port to run server")
	fs.StringVar(&config.MetricsAddr, "m", config.MetricsAddr, "address and port for /metrics")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.DurationVar(&config.TokenTTL, "t", config.TokenTTL, "session token lifetime")
	fs.StringVar(&config.Env, "e", config.Env, "environment")
	fs.StringVar(&config.FrontendURL, "f", config.FrontendURL, "frontend URL")

	return fs.Parse(args)
}
