package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
)

// randReader is a seam for RNG failure tests.
var randReader io.Reader = rand.Reader

// BlockCipher encrypts with a fresh random IV on every call and returns the
// IV alongside the ciphertext.
type BlockCipher interface {
	Name() string
	IVSize() int
	Encrypt(key, plaintext []byte) (ciphertext, iv []byte, err error)
	Decrypt(key, ciphertext, iv []byte) ([]byte, error)
}

// AESCBC is AES-256 in CBC mode with PKCS#7 padding.
type AESCBC struct{}

func (AESCBC) Name() string { return "aes-256-cbc" }

func (AESCBC) IVSize() int { return aes.BlockSize }

func (c AESCBC) Encrypt(key, plaintext []byte) ([]byte, []byte, error) {
	block, err := c.block(key)
	if err != nil {
		return nil, nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(randReader, iv); err != nil {
		return nil, nil, fmt.Errorf("generate iv: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	defer common.WipeByteArray(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)
	return ciphertext, iv, nil
}

// Decrypt fails with common.ErrDecryption on malformed input or bad padding,
// which is how a wrong key shows up in CBC.
func (c AESCBC) Decrypt(key, ciphertext, iv []byte) ([]byte, error) {
	block, err := c.block(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", common.ErrDecryption, aes.BlockSize)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a whole number of blocks", common.ErrDecryption)
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	n, ok := pkcs7PadLen(plaintext, aes.BlockSize)
	if !ok {
		common.WipeByteArray(plaintext)
		return nil, fmt.Errorf("%w: bad padding", common.ErrDecryption)
	}
	return plaintext[:len(plaintext)-n], nil
}

func (AESCBC) block(key []byte) (cipher.Block, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("aes-256-cbc: key must be 32 bytes, got %d", len(key))
	}
	return aes.NewCipher(key)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	out := make([]byte, len(b)+n)
	copy(out, b)
	for i := len(b); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func pkcs7PadLen(b []byte, blockSize int) (int, bool) {
	if len(b) == 0 {
		return 0, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return 0, false
	}
	good := 1
	for _, v := range b[len(b)-n:] {
		good &= subtle.ConstantTimeByteEq(v, byte(n))
	}
	return n, good == 1
}
