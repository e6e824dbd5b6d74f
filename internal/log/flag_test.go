package log_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/internal/log"
)

func newCommand(args ...string) (*cobra.Command, *bytes.Buffer) {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }, SilenceUsage: true}
	log.RegisterLoggingFlags(cmd)
	out := &bytes.Buffer{}
	cmd.SetErr(out)
	cmd.SetArgs(args)
	return cmd, out
}

func TestGetLoggerLevel(t *testing.T) {
	for _, tc := range []struct {
		args  []string
		level slog.Level
	}{
		{args: nil, level: slog.LevelWarn},
		{args: []string{"--loglevel", "debug"}, level: slog.LevelDebug},
		{args: []string{"--loglevel", "error"}, level: slog.LevelError},
	} {
		cmd, _ := newCommand(tc.args...)
		require.NoError(t, cmd.Execute())
		level, err := log.GetLoggerLevel(cmd)
		require.NoError(t, err)
		require.Equal(t, tc.level, level)
	}

	cmd, _ := newCommand("--loglevel", "fatal")
	require.ErrorContains(t, cmd.Execute(), "must be one of")
}

func TestGetLogr(t *testing.T) {
	r := require.New(t)
	cmd, out := newCommand("--loglevel", "debug", "--logformat", "json")
	r.NoError(cmd.Execute())

	logger, err := log.GetLogr(cmd)
	r.NoError(err)
	logger.V(1).Info("loaded", "key", "bundle:a")
	r.Contains(out.String(), `"msg":"loaded"`)
	r.Contains(out.String(), `"key":"bundle:a"`)

	cmd, out = newCommand("--logformat", "text")
	r.NoError(cmd.Execute())
	logger, err = log.GetLogr(cmd)
	r.NoError(err)
	logger.V(1).Info("hidden")
	logger.Error(nil, "shown")
	r.NotContains(out.String(), "hidden")
	r.Contains(out.String(), "shown")
}
