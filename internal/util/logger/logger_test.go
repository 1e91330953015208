package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetOutput_RedirectsExistingLoggers(t *testing.T) {
	log := Logger("test/redirect")
	SetLevel("test/redirect", slog.LevelDebug)

	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(nopWriter{})

	log.Info("切换之后", "key", "value")

	out := buf.String()
	assert.Contains(t, out, "切换之后")
	assert.Contains(t, out, "key=value")
	assert.Contains(t, out, "subsystem=test/redirect")
	assert.Contains(t, out, "level=info")
}

func TestSetLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	SetOutput(buf)
	defer SetOutput(nopWriter{})

	log := Logger("test/level")
	SetLevel("test/level", slog.LevelWarn)
	log.Info("不应出现")
	assert.Empty(t, buf.String())

	SetLevel("test/level", slog.LevelDebug)
	log.With("peer", 7).Debug("应出现")
	assert.Contains(t, buf.String(), "peer=7")
}

func TestParseConfig(t *testing.T) {
	t.Run("子系统级别与回退", func(t *testing.T) {
		cfg := ParseConfig("core/router=debug, core=warn ,error", "json", "true")
		require.NotNil(t, cfg)

		assert.Equal(t, slog.LevelDebug, cfg.LevelFor("core/router"))
		assert.Equal(t, slog.LevelWarn, cfg.LevelFor("core/transport/udp"))
		assert.Equal(t, slog.LevelError, cfg.LevelFor("cmd"))
		assert.Equal(t, FormatJSON, cfg.Format)
		assert.True(t, cfg.AddSource)
	})

	t.Run("空配置", func(t *testing.T) {
		cfg := ParseConfig("", "", "")
		assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
		assert.Equal(t, FormatText, cfg.Format)
		assert.False(t, cfg.AddSource)
	})

	t.Run("未知级别被忽略", func(t *testing.T) {
		cfg := ParseConfig("x=loud,verbose", "", "")
		assert.Equal(t, slog.LevelInfo, cfg.LevelFor("x"))
	})
}

func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
