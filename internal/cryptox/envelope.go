package cryptox

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/tyler-smith/go-bip39"
)

const (
	// DataKeySize is the length of the random per-account data key.
	DataKeySize = 32

	envelopeIVSize = 16
	wrappedKeySize = DataKeySize + 16
)

// Envelope is the credential envelope produced at registration. The server
// stores it as-is and cannot open it.
type Envelope struct {
	EncryptedDataKey  []byte `json:"encryptedDataKey"`
	DataKeyIV         []byte `json:"dataKeyIV"`
	EncryptedMnemonic []byte `json:"encryptedMnemonic"`
	MnemonicIV        []byte `json:"mnemonicIV"`
}

var errEnvelope = errors.New("malformed envelope")

// Validate checks the structural invariants only; it cannot tell whether
// the envelope decrypts.
func (e *Envelope) Validate() error {
	if e == nil {
		return errEnvelope
	}
	if len(e.DataKeyIV) != envelopeIVSize || len(e.MnemonicIV) != envelopeIVSize {
		return fmt.Errorf("%w: ivs must be %d bytes", errEnvelope, envelopeIVSize)
	}
	if bytes.Equal(e.DataKeyIV, e.MnemonicIV) {
		return fmt.Errorf("%w: iv reused", errEnvelope)
	}
	if len(e.EncryptedDataKey) != wrappedKeySize {
		return fmt.Errorf("%w: wrapped data key must be %d bytes", errEnvelope, wrappedKeySize)
	}
	if len(e.EncryptedMnemonic) == 0 || len(e.EncryptedMnemonic)%16 != 0 {
		return fmt.Errorf("%w: mnemonic ciphertext length", errEnvelope)
	}
	return nil
}

func (e *Envelope) Equal(o *Envelope) bool {
	if e == nil || o == nil {
		return e == o
	}
	return bytes.Equal(e.EncryptedDataKey, o.EncryptedDataKey) &&
		bytes.Equal(e.DataKeyIV, o.DataKeyIV) &&
		bytes.Equal(e.EncryptedMnemonic, o.EncryptedMnemonic) &&
		bytes.Equal(e.MnemonicIV, o.MnemonicIV)
}

func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	return &Envelope{
		EncryptedDataKey:  bytes.Clone(e.EncryptedDataKey),
		DataKeyIV:         bytes.Clone(e.DataKeyIV),
		EncryptedMnemonic: bytes.Clone(e.EncryptedMnemonic),
		MnemonicIV:        bytes.Clone(e.MnemonicIV),
	}
}

// Suite bundles the primitives the protocol runs with. The zero value uses
// AES-256-CBC; KDF must be set.
type Suite struct {
	KDF    KDFParams
	Cipher BlockCipher
}

func DefaultSuite() Suite {
	return Suite{KDF: DefaultKDFParams(), Cipher: AESCBC{}}
}

func (s Suite) cipher() BlockCipher {
	if s.Cipher == nil {
		return AESCBC{}
	}
	return s.Cipher
}

// NewDataKey returns a fresh random data key.
func NewDataKey() (Secret, error) {
	k := make([]byte, DataKeySize)
	if _, err := io.ReadFull(randReader, k); err != nil {
		return Secret{}, fmt.Errorf("generate data key: %w", err)
	}
	return NewSecret(k), nil
}

// Wrap encrypts the data key under the key-encryption key (the PDK).
func (s Suite) Wrap(dataKey, kek Secret) (ciphertext, iv []byte, err error) {
	if dataKey.Len() != DataKeySize {
		return nil, nil, fmt.Errorf("%w: data key must be %d bytes", common.ErrValidation, DataKeySize)
	}
	return s.cipher().Encrypt(kek.Bytes(), dataKey.Bytes())
}

// Unwrap recovers the data key. A wrong key-encryption key fails with
// common.ErrDecryption.
func (s Suite) Unwrap(ciphertext, iv []byte, kek Secret) (Secret, error) {
	pt, err := s.cipher().Decrypt(kek.Bytes(), ciphertext, iv)
	if err != nil {
		return Secret{}, fmt.Errorf("unwrap data key: %w", asDecryption(err))
	}
	if len(pt) != DataKeySize {
		common.WipeByteArray(pt)
		return Secret{}, fmt.Errorf("unwrap data key: %w", common.ErrDecryption)
	}
	return NewSecret(pt), nil
}

func (s Suite) EncryptMnemonic(mnemonic, dataKey Secret) (ciphertext, iv []byte, err error) {
	return s.cipher().Encrypt(dataKey.Bytes(), mnemonic.Bytes())
}

// DecryptMnemonic returns the mnemonic only if it decrypts to a valid BIP39
// phrase; anything else is common.ErrDecryption.
func (s Suite) DecryptMnemonic(ciphertext, iv []byte, dataKey Secret) (Secret, error) {
	pt, err := s.cipher().Decrypt(dataKey.Bytes(), ciphertext, iv)
	if err != nil {
		return Secret{}, fmt.Errorf("decrypt mnemonic: %w", asDecryption(err))
	}
	if !bip39.IsMnemonicValid(string(pt)) {
		common.WipeByteArray(pt)
		return Secret{}, fmt.Errorf("decrypt mnemonic: %w", common.ErrDecryption)
	}
	return NewSecret(pt), nil
}

// Seal builds a complete envelope for mnemonic under pdk with a freshly
// generated data key.
func (s Suite) Seal(mnemonic, pdk Secret) (*Envelope, error) {
	dataKey, err := NewDataKey()
	if err != nil {
		return nil, err
	}
	defer dataKey.Wipe()
	return s.SealWithDataKey(mnemonic, dataKey, pdk)
}

// SealWithDataKey is Seal for a caller that generated the data key itself.
func (s Suite) SealWithDataKey(mnemonic, dataKey, pdk Secret) (*Envelope, error) {
	edk, dkIV, err := s.Wrap(dataKey, pdk)
	if err != nil {
		return nil, err
	}

	var em, mIV []byte
	for attempt := 0; ; attempt++ {
		em, mIV, err = s.EncryptMnemonic(mnemonic, dataKey)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(dkIV, mIV) {
			break
		}
		if attempt == 2 {
			return nil, fmt.Errorf("%s keeps returning the same iv", s.cipher().Name())
		}
	}

	env := &Envelope{EncryptedDataKey: edk, DataKeyIV: dkIV, EncryptedMnemonic: em, MnemonicIV: mIV}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return env, nil
}

// Open reverses Seal. Structural damage, a wrong pdk and tampering all
// surface as common.ErrDecryption.
func (s Suite) Open(env *Envelope, pdk Secret) (Secret, error) {
	if err := env.Validate(); err != nil {
		return Secret{}, fmt.Errorf("%w: %v", common.ErrDecryption, err)
	}
	dataKey, err := s.Unwrap(env.EncryptedDataKey, env.DataKeyIV, pdk)
	if err != nil {
		return Secret{}, err
	}
	defer dataKey.Wipe()
	return s.DecryptMnemonic(env.EncryptedMnemonic, env.MnemonicIV, dataKey)
}

func asDecryption(err error) error {
	if errors.Is(err, common.ErrDecryption) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrDecryption, err)
}
