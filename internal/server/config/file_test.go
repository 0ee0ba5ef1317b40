package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func Test_parseFile(t *testing.T) {
	origArgs := os.Args
	t.Cleanup(func() { os.Args = origArgs })

	t.Run("json overlays only given keys", func(t *testing.T) {
		path := writeTemp(t, "cfg.json", `{
			"endpoint_addr_grpc": "www.example:9000",
			"store_backend": "memory",
			"session_token_validity_duration": "2h",
			"rotate_session_key_on_login": true,
			"cookie_secure": false,
			"endpoint_addr_http": ""
		}`)
		os.Args = []string{"testbin", "-config", path}

		var c Config
		c.LoadDefaults()
		parseFile(&c)

		assert.Equal(t, "www.example:9000", c.EndpointAddrGRPC)
		assert.Equal(t, StoreMemory, c.StoreBackend)
		assert.Equal(t, 2*time.Hour, c.SessionTokenValidityDuration)
		assert.True(t, c.RotateSessionKeyOnLogin)
		assert.False(t, c.CookieSecure)
		assert.Empty(t, c.EndpointAddrHTTP)
		assert.Equal(t, "secretKey", c.SecretKey)
	})

	t.Run("yaml", func(t *testing.T) {
		path := writeTemp(t, "cfg.yaml", "secret_key: from-yaml\nauth_burst: 9\nredis_url: redis://r:6379\n")
		os.Args = []string{"testbin", "-c", path}

		var c Config
		c.LoadDefaults()
		parseFile(&c)

		assert.Equal(t, "from-yaml", c.SecretKey)
		assert.Equal(t, 9, c.AuthBurst)
		assert.Equal(t, "redis://r:6379", c.RedisURL)
	})

	t.Run("no file", func(t *testing.T) {
		os.Args = []string{"testbin"}
		var c Config
		require.NotPanics(t, func() { parseFile(&c) })
		assert.Equal(t, Config{}, c)
	})

	t.Run("invalid file panics", func(t *testing.T) {
		path := writeTemp(t, "cfg.json", `{"secret_key":`)
		os.Args = []string{"testbin", "-c", path}
		var c Config
		assert.Panics(t, func() { parseFile(&c) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		os.Args = []string{"testbin", "-c", filepath.Join(t.TempDir(), "nope.json")}
		var c Config
		assert.Panics(t, func() { parseFile(&c) })
	})
}
