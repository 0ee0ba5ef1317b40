// Package cryptox holds the client-side cryptography of the wallet vault:
// password stretching, the two-layer credential envelope and the session
// artifact keystore.
package cryptox

import (
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/multiplycharity/multiply-monorepo/internal/common"
)

const redacted = "[REDACTED]"

// Secret holds key material or plaintext secrets. It never renders its
// contents through fmt, slog or encoding/json, so passing one to a logger or
// an error message is harmless.
type Secret struct {
	b []byte
}

// NewSecret takes ownership of b.
func NewSecret(b []byte) Secret { return Secret{b: b} }

// CopySecret copies b into a new Secret; the caller keeps b.
func CopySecret(b []byte) Secret {
	c := make([]byte, len(b))
	copy(c, b)
	return Secret{b: c}
}

// Bytes exposes the underlying buffer. Do not retain it past Wipe.
func (s Secret) Bytes() []byte { return s.b }

func (s Secret) Len() int { return len(s.b) }

func (s Secret) IsZero() bool { return len(s.b) == 0 }

// Equal compares in constant time.
func (s Secret) Equal(o Secret) bool {
	return subtle.ConstantTimeCompare(s.b, o.b) == 1
}

// Wipe zeroes the buffer in place. Copies of s share it.
func (s Secret) Wipe() { common.WipeByteArray(s.b) }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

// Format covers every verb, including %x and %q.
func (s Secret) Format(f fmt.State, _ rune) { _, _ = io.WriteString(f, redacted) }

func (s Secret) LogValue() slog.Value { return slog.StringValue(redacted) }

func (s Secret) MarshalJSON() ([]byte, error) { return json.Marshal(redacted) }

// passphrase renders the secret for APIs that only accept strings.
func (s Secret) passphrase() string { return hex.EncodeToString(s.b) }
