// Package config loads runtime configuration for the vault CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON or YAML file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// Durations in the file are strings like "3s" or integer nanoseconds:
//
//	server_endpoint_addr: 127.0.0.1:50051
//	local_db_path: ~/.multiply/vault.db
//	kdf_iterations: 600000
//	derivation_queue_wait: 5s
package config
