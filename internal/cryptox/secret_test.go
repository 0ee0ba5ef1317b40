package cryptox

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecret_NeverRendersContents(t *testing.T) {
	raw := []byte("correct horse battery staple")
	s := CopySecret(raw)
	hexRaw := hex.EncodeToString(raw)

	for _, verb := range []string{"%v", "%+v", "%#v", "%s", "%q", "%x", "%X", "%d"} {
		out := fmt.Sprintf(verb, s)
		assert.Equal(t, redacted, out, "verb %s", verb)
	}

	wrapped := fmt.Sprintf("%v", struct{ Key Secret }{s})
	assert.NotContains(t, wrapped, "horse")
	assert.NotContains(t, wrapped, hexRaw)

	var buf bytes.Buffer
	l := slog.New(slog.NewJSONHandler(&buf, nil))
	l.Info("derived", "pdk", s)
	assert.Contains(t, buf.String(), redacted)
	assert.NotContains(t, buf.String(), "horse")

	b, err := json.Marshal(map[string]any{"k": s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"k":"[REDACTED]"}`, string(b))

	err = fmt.Errorf("failed with %v", s)
	assert.False(t, strings.Contains(err.Error(), "horse"))
}

func TestSecret_CopyAndWipe(t *testing.T) {
	raw := []byte{1, 2, 3}
	s := CopySecret(raw)
	s.Wipe()
	assert.Equal(t, []byte{0, 0, 0}, s.Bytes())
	assert.Equal(t, []byte{1, 2, 3}, raw, "CopySecret must not alias the input")

	owned := NewSecret(raw)
	owned.Wipe()
	assert.Equal(t, []byte{0, 0, 0}, raw)
}

func TestSecret_Equal(t *testing.T) {
	assert.True(t, CopySecret([]byte("a")).Equal(CopySecret([]byte("a"))))
	assert.False(t, CopySecret([]byte("a")).Equal(CopySecret([]byte("b"))))
	assert.True(t, Secret{}.IsZero())
}
