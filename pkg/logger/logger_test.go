package logger

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&Config{Level: "loud"})
	require.Error(t, err)
}

func TestFileOutputWritesThroughRotator(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("stream opened", String("context_id", "abc"), Int("subscriptions", 2))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"context_id":"abc"`)
	require.Contains(t, string(b), `"subscriptions":2`)
}

func TestNilAndNopLoggersAreSafe(t *testing.T) {
	var l *Logger
	l.Info("ignored")
	l.With(String("k", "v")).Error("ignored", Error(errors.New("boom")))
	Nop().Warn("ignored", Bool("ok", true))
}
