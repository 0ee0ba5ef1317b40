package cryptox

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	KDFPBKDF2SHA256 = "pbkdf2-sha256"
	KDFPBKDF2SHA512 = "pbkdf2-sha512"
	KDFArgon2id     = "argon2id"

	// KeySize is the output length of every derivation.
	KeySize = 32

	CurrentKDFVersion   = 1
	MinPBKDF2Iterations = 100_000
	MinArgon2MemoryKiB  = 19 * 1024
)

// KDFParams is the versioned work factor stored next to each account's
// envelope. Raising the defaults never breaks existing accounts because
// every account keeps the params it registered with.
type KDFParams struct {
	Version    int    `json:"version" yaml:"version"`
	Algorithm  string `json:"algorithm" yaml:"algorithm"`
	Iterations uint32 `json:"iterations" yaml:"iterations"`
	MemoryKiB  uint32 `json:"memory_kib,omitempty" yaml:"memory_kib,omitempty"`
	Threads    uint8  `json:"threads,omitempty" yaml:"threads,omitempty"`
}

// DefaultKDFParams returns the parameters used for new accounts.
func DefaultKDFParams() KDFParams {
	return KDFParams{
		Version:    CurrentKDFVersion,
		Algorithm:  KDFPBKDF2SHA256,
		Iterations: 600_000,
	}
}

// Validate rejects unknown algorithms and work factors too small to slow
// down offline guessing.
func (p KDFParams) Validate() error {
	if p.Version < 1 || p.Version > CurrentKDFVersion {
		return fmt.Errorf("%w: unsupported kdf version %d", common.ErrDerivation, p.Version)
	}
	switch p.Algorithm {
	case KDFPBKDF2SHA256, KDFPBKDF2SHA512:
		if p.Iterations < MinPBKDF2Iterations {
			return fmt.Errorf("%w: %d pbkdf2 iterations, need at least %d", common.ErrDerivation, p.Iterations, MinPBKDF2Iterations)
		}
	case KDFArgon2id:
		if p.Iterations < 1 || p.Threads < 1 {
			return fmt.Errorf("%w: argon2id needs iterations and threads", common.ErrDerivation)
		}
		if p.MemoryKiB < MinArgon2MemoryKiB {
			return fmt.Errorf("%w: argon2id memory %d KiB, need at least %d", common.ErrDerivation, p.MemoryKiB, MinArgon2MemoryKiB)
		}
	default:
		return fmt.Errorf("%w: unknown kdf %q", common.ErrDerivation, p.Algorithm)
	}
	return nil
}

func (p KDFParams) stretch(secret, salt []byte) ([]byte, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	switch p.Algorithm {
	case KDFPBKDF2SHA256:
		return pbkdf2.Key(secret, salt, int(p.Iterations), KeySize, sha256.New), nil
	case KDFPBKDF2SHA512:
		return pbkdf2.Key(secret, salt, int(p.Iterations), KeySize, sha512.New), nil
	case KDFArgon2id:
		return argon2.IDKey(secret, salt, p.Iterations, p.MemoryKiB, p.Threads, KeySize), nil
	}
	return nil, fmt.Errorf("%w: unknown kdf %q", common.ErrDerivation, p.Algorithm)
}

// DeriveKey stretches password with id as the salt and returns the
// password-derived key (PDK). Same inputs always give the same key.
func DeriveKey(id string, password []byte, p KDFParams) (Secret, error) {
	k, err := p.stretch(password, []byte(id))
	if err != nil {
		return Secret{}, err
	}
	return NewSecret(k), nil
}

// DerivePasswordHash runs a second stretching pass over the PDK salted with
// the password. The result authenticates the user to the server and is
// never used as a key.
func DerivePasswordHash(id string, password []byte, p KDFParams) (Secret, error) {
	pdk, err := DeriveKey(id, password, p)
	if err != nil {
		return Secret{}, err
	}
	defer pdk.Wipe()
	return PasswordHashFromKey(pdk, password, p)
}

// PasswordHashFromKey is DerivePasswordHash for a caller that already holds
// the PDK within the same invocation.
func PasswordHashFromKey(pdk Secret, password []byte, p KDFParams) (Secret, error) {
	if pdk.Len() != KeySize {
		return Secret{}, fmt.Errorf("%w: password-derived key must be %d bytes", common.ErrDerivation, KeySize)
	}
	h, err := p.stretch(pdk.Bytes(), password)
	if err != nil {
		return Secret{}, err
	}
	return NewSecret(h), nil
}
