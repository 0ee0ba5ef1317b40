package models

import (
	"time"

	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
)

// Account is one registered identity. PasswordHash and SessionKey are
// secrets; Envelope is opaque ciphertext the server cannot open.
type Account struct {
	ID           string
	Identity     string
	PasswordHash []byte
	Address      string
	Envelope     cryptox.Envelope
	KDF          cryptox.KDFParams
	SessionKey   []byte
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Clone returns a deep copy so stores never share byte slices with callers.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.PasswordHash = append([]byte(nil), a.PasswordHash...)
	c.SessionKey = append([]byte(nil), a.SessionKey...)
	c.Envelope = *a.Envelope.Clone()
	return &c
}
