// Package common contains shared constants and sentinel errors used across
// the wallet client and the account authority.
package common

// SessionTokenHeaderName is the gRPC metadata key carrying the session
// credential in both directions.
const SessionTokenHeaderName = "session_token"

// SessionCookieName is the httpOnly cookie used by the HTTP API.
const SessionCookieName = "multiply_session"
