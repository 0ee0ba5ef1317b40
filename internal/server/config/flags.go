package config

import (
	"flag"
	"os"
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/flagx"
)

// parseFlags overlays the server's short flags onto config.
//
//	-a string   gRPC listen address
//	-l string   HTTP listen address ("" disables the HTTP API)
//	-m string   store backend: postgres, s3 or memory
//	-d string   PostgreSQL DSN
//	-s string   session token HMAC key
//	-t int      session token lifetime, minutes
//	-k bool     rotate the session key on every login (use -k=true)
//	-r string   Redis URL
//	-u/-p/-b/-g/-e  S3 user, password, bucket, region, endpoint
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-l", "-m", "-d", "-s", "-t", "-k", "-r", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "gRPC listen address")
	fs.StringVar(&config.EndpointAddrHTTP, "l", config.EndpointAddrHTTP, "HTTP listen address")
	fs.StringVar(&config.StoreBackend, "m", config.StoreBackend, "store backend (postgres|s3|memory)")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "session token secret key")
	tokenValidity := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session token validity (in minutes)")
	fs.BoolVar(&config.RotateSessionKeyOnLogin, "k", config.RotateSessionKeyOnLogin, "rotate session key on login")
	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidityDuration = time.Duration(*tokenValidity) * time.Minute
}
