package cryptox

import (
	"crypto/ecdsa"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
)

// ScryptParams is the cost of the session artifact's passphrase stretch.
// The session key is random, so the light profile is enough.
type ScryptParams struct {
	N int `json:"n" yaml:"n"`
	P int `json:"p" yaml:"p"`
}

func DefaultScryptParams() ScryptParams {
	return ScryptParams{N: keystore.LightScryptN, P: keystore.LightScryptP}
}

// SessionArtifact is a Web3 Secret Storage (v3) document holding the
// wallet private key, encrypted with the session key as passphrase.
type SessionArtifact []byte

// SealSessionArtifact encrypts priv under sessionKey.
func SealSessionArtifact(priv *ecdsa.PrivateKey, sessionKey Secret, p ScryptParams) (SessionArtifact, error) {
	if priv == nil {
		return nil, fmt.Errorf("%w: no private key", common.ErrValidation)
	}
	if sessionKey.Len() < 32 {
		return nil, fmt.Errorf("%w: session key too short", common.ErrValidation)
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	key := &keystore.Key{
		Id:         id,
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
		PrivateKey: priv,
	}
	out, err := keystore.EncryptKey(key, sessionKey.passphrase(), p.N, p.P)
	if err != nil {
		return nil, fmt.Errorf("seal session artifact: %w", err)
	}
	return out, nil
}

// OpenSessionArtifact decrypts a. Any mismatch between artifact and key,
// including a stale artifact from a rotated key, is common.ErrDecryption.
func OpenSessionArtifact(a SessionArtifact, sessionKey Secret) (*ecdsa.PrivateKey, error) {
	if len(a) == 0 {
		return nil, fmt.Errorf("open session artifact: %w", common.ErrDecryption)
	}
	key, err := keystore.DecryptKey(a, sessionKey.passphrase())
	if err != nil {
		return nil, fmt.Errorf("open session artifact: %w", common.ErrDecryption)
	}
	return key.PrivateKey, nil
}

// Address reads the public address recorded in the artifact without
// decrypting it.
func (a SessionArtifact) Address() (ethcommon.Address, error) {
	var doc struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(a, &doc); err != nil {
		return ethcommon.Address{}, fmt.Errorf("read artifact address: %w", err)
	}
	if !ethcommon.IsHexAddress(doc.Address) {
		return ethcommon.Address{}, fmt.Errorf("read artifact address: %w", common.ErrValidation)
	}
	return ethcommon.HexToAddress(doc.Address), nil
}
