// Package vault runs the client side of the credential-protection
// protocol: registration, login and session recovery against an account
// authority that only ever sees ciphertext and a password hash.
package vault

import (
	"context"

	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
)

// Authority is the remote account store and session issuer.
//
// Errors are tagged with the common sentinels: CreateAccount fails with
// ErrAccountExists, Authenticate with ErrAuthentication, and the session
// calls with ErrSessionExpired, ErrSessionInvalid or ErrSessionRevoked.
type Authority interface {
	// KDFParams returns the work factor stored for id, or the current
	// default when id is unknown.
	KDFParams(ctx context.Context, id string) (cryptox.KDFParams, error)
	CreateAccount(ctx context.Context, req *CreateAccountRequest) (*CreateAccountResponse, error)
	Authenticate(ctx context.Context, req *AuthenticateRequest) (*AuthenticateResponse, error)
	// FetchSessionKey is read-only and safe to retry.
	FetchSessionKey(ctx context.Context) (cryptox.Secret, error)
	// RotateSessionKey replaces the account's session key, invalidating
	// every artifact built with the old one.
	RotateSessionKey(ctx context.Context) (cryptox.Secret, error)
	// Logout revokes the current session credential.
	Logout(ctx context.Context) error
}

type CreateAccountRequest struct {
	ID           string
	PasswordHash cryptox.Secret
	Address      string
	Envelope     *cryptox.Envelope
	KDF          cryptox.KDFParams
}

type CreateAccountResponse struct {
	AccountID  string
	SessionKey cryptox.Secret
}

type AuthenticateRequest struct {
	ID           string
	PasswordHash cryptox.Secret
}

type AuthenticateResponse struct {
	Envelope   *cryptox.Envelope
	SessionKey cryptox.Secret
}
