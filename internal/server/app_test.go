package server

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/multiplycharity/multiply-monorepo/internal/logging"
	"github.com/multiplycharity/multiply-monorepo/internal/server/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.StoreBackend = config.StoreMemory
	c.EndpointAddrGRPC = "127.0.0.1:0"
	c.EndpointAddrHTTP = "127.0.0.1:0"
	return c
}

func TestNewApp_UnknownBackend(t *testing.T) {
	c := memoryConfig()
	c.StoreBackend = "floppy"
	_, err := NewApp(context.Background(), c, logging.Nop())
	assert.ErrorContains(t, err, "unknown store backend")
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	c := memoryConfig()
	c.RedisURL = "redis://127.0.0.1:1/0"
	_, err := NewApp(context.Background(), c, logging.Nop())
	assert.ErrorContains(t, err, "redis init error")
}

func TestNewApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	c := memoryConfig()
	c.RedisURL = "redis://" + mr.Addr() + "/0"

	app, err := NewApp(context.Background(), c, logging.Nop())
	require.NoError(t, err)
	assert.Len(t, app.closers, 2)
	app.Close()
	assert.Empty(t, app.closers)
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), memoryConfig(), logging.Nop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop")
	}
}
