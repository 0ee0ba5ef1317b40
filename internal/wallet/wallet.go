// Package wallet creates and restores the user's HD wallet: a BIP39
// mnemonic and the Ethereum account at m/44'/60'/0'/0/0.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiplycharity/multiply-monorepo/internal/common"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/tyler-smith/go-bip39"
)

// EntropyBits gives a 12-word mnemonic.
const EntropyBits = 128

var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// Wallet holds plaintext secrets; call Wipe once done with it.
type Wallet struct {
	Mnemonic   cryptox.Secret
	PrivateKey *ecdsa.PrivateKey
	Address    ethcommon.Address
}

// New generates a fresh mnemonic and derives its default account.
func New() (*Wallet, error) {
	entropy, err := bip39.NewEntropy(EntropyBits)
	if err != nil {
		return nil, fmt.Errorf("generate entropy: %w", err)
	}
	defer common.WipeByteArray(entropy)

	m, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("generate mnemonic: %w", err)
	}
	return FromMnemonic(cryptox.NewSecret([]byte(m)))
}

// FromMnemonic derives the default account from an existing mnemonic. The
// wallet takes ownership of m.
func FromMnemonic(m cryptox.Secret) (*Wallet, error) {
	return FromMnemonicPath(m, accounts.DefaultBaseDerivationPath)
}

// FromMnemonicPath derives the account at path.
func FromMnemonicPath(m cryptox.Secret, path accounts.DerivationPath) (*Wallet, error) {
	phrase := strings.TrimSpace(string(m.Bytes()))
	seed, err := bip39.NewSeedWithErrorChecking(phrase, "")
	if err != nil {
		return nil, ErrInvalidMnemonic
	}
	defer common.WipeByteArray(seed)

	priv, err := derive(seed, path)
	if err != nil {
		return nil, err
	}
	return &Wallet{
		Mnemonic:   m,
		PrivateKey: priv,
		Address:    crypto.PubkeyToAddress(priv.PublicKey),
	}, nil
}

// FromPrivateKey wraps a key recovered from a session artifact. Such a
// wallet has no mnemonic.
func FromPrivateKey(priv *ecdsa.PrivateKey) *Wallet {
	return &Wallet{PrivateKey: priv, Address: crypto.PubkeyToAddress(priv.PublicKey)}
}

func derive(seed []byte, path accounts.DerivationPath) (*ecdsa.PrivateKey, error) {
	key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}
	for _, idx := range path {
		key, err = key.Derive(idx)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path, err)
		}
	}
	ec, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("derive %s: %w", path, err)
	}
	raw := ec.Serialize()
	defer common.WipeByteArray(raw)
	return crypto.ToECDSA(raw)
}

// Wipe clears the mnemonic and the private scalar.
func (w *Wallet) Wipe() {
	if w == nil {
		return
	}
	w.Mnemonic.Wipe()
	if w.PrivateKey != nil && w.PrivateKey.D != nil {
		w.PrivateKey.D.SetInt64(0)
	}
}
