package config

import (
	"flag"
	"os"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the authority
//	-i int      online check interval in seconds
//	-f string   local database file
//	-n uint     PBKDF2 iterations for new accounts
//	-w int      concurrent key derivations (0 = number of CPUs)
//	-l string   log level
//
// os.Args is filtered to these flags with flagx.FilterArgs so other
// components can define their own.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-f", "-n", "-w", "-l"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.LocalDBPath, "f", cfg.LocalDBPath, "local database file")
	iterations := fs.Uint("n", uint(cfg.KDFIterations), "pbkdf2 iterations for new accounts")
	fs.IntVar(&cfg.MaxConcurrentDerivations, "w", cfg.MaxConcurrentDerivations, "concurrent key derivations")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
	cfg.KDFIterations = uint32(*iterations)
}
