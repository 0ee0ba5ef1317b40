package config

import (
	"github.com/multiplycharity/multiply-monorepo/internal/flagx"
	"github.com/multiplycharity/multiply-monorepo/internal/timex"
)

// FileConfig is the on-disk shape of Config. Pointer fields distinguish an
// explicit false or zero from an omitted key.
type FileConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc" yaml:"endpoint_addr_grpc"`
	EndpointAddrHTTP             *string        `json:"endpoint_addr_http" yaml:"endpoint_addr_http"`
	StoreBackend                 string         `json:"store_backend" yaml:"store_backend"`
	DatabaseDSN                  string         `json:"database_dsn" yaml:"database_dsn"`
	SecretKey                    string         `json:"secret_key" yaml:"secret_key"`
	SessionTokenValidityDuration timex.Duration `json:"session_token_validity_duration" yaml:"session_token_validity_duration"`
	RotateSessionKeyOnLogin      *bool          `json:"rotate_session_key_on_login" yaml:"rotate_session_key_on_login"`
	RedisURL                     string         `json:"redis_url" yaml:"redis_url"`
	AuthRateLimit                float64        `json:"auth_rate_limit" yaml:"auth_rate_limit"`
	AuthBurst                    int            `json:"auth_burst" yaml:"auth_burst"`
	CookieSecure                 *bool          `json:"cookie_secure" yaml:"cookie_secure"`
	LogLevel                     string         `json:"log_level" yaml:"log_level"`
	S3RootUser                   string         `json:"s3_root_user" yaml:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password" yaml:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket" yaml:"s3_bucket"`
	S3Region                     string         `json:"s3_region" yaml:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint" yaml:"s3_base_endpoint"`
}

// parseFile overlays the file named by -c/-config onto config. Keys left
// out of the file keep their current value.
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
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	if c.EndpointAddrHTTP != nil {
		config.EndpointAddrHTTP = *c.EndpointAddrHTTP
	}
	setString(&config.StoreBackend, c.StoreBackend)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	if c.SessionTokenValidityDuration.Duration > 0 {
		config.SessionTokenValidityDuration = c.SessionTokenValidityDuration.Duration
	}
	if c.RotateSessionKeyOnLogin != nil {
		config.RotateSessionKeyOnLogin = *c.RotateSessionKeyOnLogin
	}
	setString(&config.RedisURL, c.RedisURL)
	if c.AuthRateLimit > 0 {
		config.AuthRateLimit = c.AuthRateLimit
	}
	if c.AuthBurst > 0 {
		config.AuthBurst = c.AuthBurst
	}
	if c.CookieSecure != nil {
		config.CookieSecure = *c.CookieSecure
	}
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
