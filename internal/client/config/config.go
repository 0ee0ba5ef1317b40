package config

import "time"

// Config holds runtime settings for the vault CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the authority's gRPC endpoint.
//   - OnlineCheckInterval: how often the client probes server reachability.
//   - LocalDBPath: SQLite file holding the persisted session.
//   - KDFAlgorithm / KDFIterations: work factor for new accounts. Existing
//     accounts always use the params stored with them.
//   - ScryptN / ScryptP: cost of the local session artifact.
//   - MaxConcurrentDerivations / DerivationQueueWait: derivation pool bounds.
//   - FetchRetries: retries of the session key fetch while the server is down.
//   - RequestTimeout: deadline for a single call.
type Config struct {
	ServerEndpointAddr       string
	OnlineCheckInterval      time.Duration
	LocalDBPath              string
	KDFAlgorithm             string
	KDFIterations            uint32
	ScryptN                  int
	ScryptP                  int
	MaxConcurrentDerivations int
	DerivationQueueWait      time.Duration
	FetchRetries             uint64
	RequestTimeout           time.Duration
	LogLevel                 string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 3 * time.Second
	c.LocalDBPath = "vault.db"
	c.KDFAlgorithm = "pbkdf2-sha256"
	c.KDFIterations = 600_000
	c.ScryptN = 1 << 12
	c.ScryptP = 6
	c.MaxConcurrentDerivations = 0
	c.DerivationQueueWait = 5 * time.Second
	c.FetchRetries = 3
	c.RequestTimeout = 30 * time.Second
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// a config file (if given) and command-line flags. Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseFile(cfg)
	parseFlags(cfg)
	return cfg
}
