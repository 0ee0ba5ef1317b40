package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug, ReplaceAttr: RedactAttr})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "dbg", "a", 1)
	log.Info(ctx, "inf", "b", 2)
	log.Warn(ctx, "wrn", "c", 3)
	log.Error(ctx, "err", "d", 4)

	out := buf.String()
	for _, want := range []string{
		"level=DEBUG", "msg=dbg", "a=1",
		"level=INFO", "msg=inf", "b=2",
		"level=WARN", "msg=wrn", "c=3",
		"level=ERROR", "msg=err", "d=4",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSlogLogger_With(t *testing.T) {
	log, buf := newTestLogger(t)
	log.With("module", "vault", "account_id", "a-1").Info(context.Background(), "hello", "k", "v")

	out := buf.String()
	for _, want := range []string{"module=vault", "account_id=a-1", "k=v"} {
		assert.Contains(t, out, want)
	}
}

func TestRedactAttr(t *testing.T) {
	log, buf := newTestLogger(t)
	log.Info(context.Background(), "login",
		"id", "alice",
		"password", "hunter2",
		"Session_Key", "00ff",
		"mnemonic", "abandon abandon",
	)
	out := buf.String()
	assert.Contains(t, out, "id=alice")
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "00ff")
	assert.NotContains(t, out, "abandon")
	assert.Equal(t, 3, strings.Count(out, redacted))
}

func TestNew_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, slog.LevelInfo)
	l.Debug(context.Background(), "hidden")
	l.Info(context.Background(), "shown", "token", "abc")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "shown", rec["msg"])
	assert.Equal(t, redacted, rec["token"])
	assert.NotNil(t, l.Slog())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("nonsense"))
}

func TestNop(t *testing.T) {
	n := Nop()
	assert.NotPanics(t, func() {
		n.With("a", 1).Info(context.Background(), "x")
		n.Debug(context.Background(), "x")
		n.Warn(context.Background(), "x")
		n.Error(context.Background(), "x")
	})
}
