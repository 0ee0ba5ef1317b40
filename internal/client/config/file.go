package config

import (
	"github.com/multiplycharity/multiply-monorepo/internal/flagx"
	"github.com/multiplycharity/multiply-monorepo/internal/timex"
)

// FileConfig is the on-disk shape of Config.
type FileConfig struct {
	ServerEndpointAddr       string         `json:"server_endpoint_addr" yaml:"server_endpoint_addr"`
	OnlineCheckInterval      timex.Duration `json:"online_check_interval" yaml:"online_check_interval"`
	LocalDBPath              string         `json:"local_db_path" yaml:"local_db_path"`
	KDFAlgorithm             string         `json:"kdf_algorithm" yaml:"kdf_algorithm"`
	KDFIterations            uint32         `json:"kdf_iterations" yaml:"kdf_iterations"`
	ScryptN                  int            `json:"scrypt_n" yaml:"scrypt_n"`
	ScryptP                  int            `json:"scrypt_p" yaml:"scrypt_p"`
	MaxConcurrentDerivations int            `json:"max_concurrent_derivations" yaml:"max_concurrent_derivations"`
	DerivationQueueWait      timex.Duration `json:"derivation_queue_wait" yaml:"derivation_queue_wait"`
	FetchRetries             *uint64        `json:"fetch_retries" yaml:"fetch_retries"`
	RequestTimeout           timex.Duration `json:"request_timeout" yaml:"request_timeout"`
	LogLevel                 string         `json:"log_level" yaml:"log_level"`
}

func parseFile(config *Config) {
	path := flagx.ConfigFileFlag()
	if path == "" {
		return
	}

	c := &FileConfig{}
	if err := flagx.LoadFile(path, c); err != nil {
		panic(err)
	}
	c.apply(config)
}

func (c *FileConfig) apply(config *Config) {
	if c.ServerEndpointAddr != "" {
		config.ServerEndpointAddr = c.ServerEndpointAddr
	}
	if c.OnlineCheckInterval.Duration != 0 {
		config.OnlineCheckInterval = c.OnlineCheckInterval.Duration
	}
	if c.LocalDBPath != "" {
		config.LocalDBPath = c.LocalDBPath
	}
	if c.KDFAlgorithm != "" {
		config.KDFAlgorithm = c.KDFAlgorithm
	}
	if c.KDFIterations != 0 {
		config.KDFIterations = c.KDFIterations
	}
	if c.ScryptN != 0 {
		config.ScryptN = c.ScryptN
	}
	if c.ScryptP != 0 {
		config.ScryptP = c.ScryptP
	}
	if c.MaxConcurrentDerivations != 0 {
		config.MaxConcurrentDerivations = c.MaxConcurrentDerivations
	}
	if c.DerivationQueueWait.Duration != 0 {
		config.DerivationQueueWait = c.DerivationQueueWait.Duration
	}
	if c.FetchRetries != nil {
		config.FetchRetries = *c.FetchRetries
	}
	if c.RequestTimeout.Duration != 0 {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.LogLevel != "" {
		config.LogLevel = c.LogLevel
	}
}
