// Package client talks to the account authority over gRPC and opens the
// local SQLite database the CLI keeps its session in.
package client

import (
	"context"
	"errors"

	"github.com/multiplycharity/multiply-monorepo/internal/vault"
)

// ErrLocalDataNotAvailable means no persisted session exists locally.
var ErrLocalDataNotAvailable = errors.New("local data unavailable")

// Client is the remote authority as seen by the CLI.
type Client interface {
	vault.Authority
	Exists(ctx context.Context, id string) (bool, error)
	UpdateAddress(ctx context.Context, address string) error
	Ping(ctx context.Context) error
	// SessionToken is the credential captured from the last register or
	// login, for local persistence.
	SessionToken() string
	SetSessionToken(token string)
	Close() error
}
