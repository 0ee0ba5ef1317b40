// Package common defines shared constants and sentinel errors used across
// client and server layers. Callers should use errors.Is to match these
// values, or KindOf to get the tagged error kind.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal = errors.New("internal error")

	// Protocol errors.
	ErrDerivation     = errors.New("key derivation failed")
	ErrAccountExists  = errors.New("account already exists")
	ErrAuthentication = errors.New("authentication failed")
	ErrDecryption     = errors.New("decryption failed")

	// Session credential lifecycle errors.
	ErrSessionExpired = errors.New("session expired")
	ErrSessionInvalid = errors.New("session invalid")
	ErrSessionRevoked = errors.New("session revoked")

	// Backpressure and throttling.
	ErrBusy        = errors.New("too many concurrent derivations, retry later")
	ErrRateLimited = errors.New("too many attempts, retry later")

	// Transport / state errors.
	ErrUnavailable  = errors.New("authority unavailable")
	ErrInvalidState = errors.New("invalid session state")
	ErrValidation   = errors.New("validation error")
)
