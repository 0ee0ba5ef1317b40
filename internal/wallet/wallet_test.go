package wallet

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiplycharity/multiply-monorepo/internal/cryptox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known BIP39 test vector; its m/44'/60'/0'/0/0 account is widely
// published.
const vectorMnemonic = "test test test test test test test test test test test junk"

const vectorAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func TestFromMnemonic_KnownVector(t *testing.T) {
	w, err := FromMnemonic(cryptox.CopySecret([]byte(vectorMnemonic)))
	require.NoError(t, err)
	assert.Equal(t, vectorAddress, w.Address.Hex())
	assert.Equal(t, w.Address, crypto.PubkeyToAddress(w.PrivateKey.PublicKey))
}

func TestNew_RestoresFromItsMnemonic(t *testing.T) {
	w, err := New()
	require.NoError(t, err)
	assert.Len(t, strings.Fields(string(w.Mnemonic.Bytes())), 12)

	again, err := FromMnemonic(cryptox.CopySecret(w.Mnemonic.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, w.Address, again.Address)
	assert.Equal(t, crypto.FromECDSA(w.PrivateKey), crypto.FromECDSA(again.PrivateKey))
}

func TestFromMnemonic_Invalid(t *testing.T) {
	_, err := FromMnemonic(cryptox.CopySecret([]byte("not a real mnemonic at all")))
	assert.ErrorIs(t, err, ErrInvalidMnemonic)

	bad := strings.Replace(vectorMnemonic, "junk", "test", 1)
	_, err = FromMnemonic(cryptox.CopySecret([]byte(bad)))
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}

func TestFromMnemonicPath_OtherIndex(t *testing.T) {
	path, err := accounts.ParseDerivationPath("m/44'/60'/0'/0/1")
	require.NoError(t, err)
	w0, err := FromMnemonic(cryptox.CopySecret([]byte(vectorMnemonic)))
	require.NoError(t, err)
	w1, err := FromMnemonicPath(cryptox.CopySecret([]byte(vectorMnemonic)), path)
	require.NoError(t, err)
	assert.NotEqual(t, w0.Address, w1.Address)
	assert.Equal(t, "0x70997970C51812dc3A010C7d01b50e0d17dc79C8", w1.Address.Hex())
}

func TestWipe(t *testing.T) {
	w, err := FromMnemonic(cryptox.CopySecret([]byte(vectorMnemonic)))
	require.NoError(t, err)
	w.Wipe()
	assert.Zero(t, w.PrivateKey.D.Sign())
	for _, b := range w.Mnemonic.Bytes() {
		assert.Zero(t, b)
	}

	var nilWallet *Wallet
	assert.NotPanics(t, nilWallet.Wipe)

	fromKey := FromPrivateKey(w.PrivateKey)
	assert.True(t, fromKey.Mnemonic.IsZero())
}
