package main

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLogLevel_KnownLevels_Success(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}

	for in, want := range cases {
		got, err := parseLogLevel(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseLogLevel_Unknown_Error(t *testing.T) {
	t.Parallel()

	_, err := parseLogLevel("verbose")
	require.ErrorIs(t, err, errArgInvalidLogLevel)
}

func TestIgnoreArg_Set_CleansAndAppends(t *testing.T) {
	t.Parallel()

	var a ignoreArg

	require.NoError(t, a.Set(" /tmp/foo/ "))
	require.NoError(t, a.Set("/tmp/bar/../baz"))

	require.Equal(t, ignoreArg{"/tmp/foo", "/tmp/baz"}, a)
}

func TestSlogLogger_DelegatesToUnderlyingLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := slogLogger{l: slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))}

	l.Debug("a debug line")
	l.Info("an info line", "k", "v")
	l.Warn("a warn line")
	l.Error("an error line")

	out := buf.String()
	require.Contains(t, out, "a debug line")
	require.Contains(t, out, "an info line")
	require.Contains(t, out, "k=v")
	require.Contains(t, out, "a warn line")
	require.Contains(t, out, "an error line")
}
