package rpc

import "github.com/multiplycharity/multiply-monorepo/internal/cryptox"

// Go mirrors of the messages in account_authority.proto. Envelope fields are
// embedded so they stay flat, as in the schema:
// encryptedDataKey, dataKeyIV, encryptedMnemonic, mnemonicIV.

type IdentityRequest struct {
	ID string `json:"id"`
}

type KDFParamsResponse struct {
	KDF cryptox.KDFParams `json:"kdf"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

type CreateAccountRequest struct {
	ID           string `json:"id"`
	PasswordHash []byte `json:"passwordHash"`
	Address      string `json:"address"`
	cryptox.Envelope
	KDF cryptox.KDFParams `json:"kdf"`
}

type CreateAccountResponse struct {
	AccountID  string `json:"accountId"`
	SessionKey []byte `json:"sessionKey"`
}

type AuthenticateRequest struct {
	ID           string `json:"id"`
	PasswordHash []byte `json:"passwordHash"`
}

type AuthenticateResponse struct {
	cryptox.Envelope
	SessionKey []byte `json:"sessionKey"`
}

type SessionKeyResponse struct {
	SessionKey []byte `json:"sessionKey"`
}

type UpdateAddressRequest struct {
	Address string `json:"address"`
}

type PingResponse struct {
	Status string `json:"status"`
}

type Empty struct{}
