package log

import (
	"fmt"
	"log/slog"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"ocm.software/open-component-model/streaming/internal/flags/enum"
)

const (
	FlagLogLevel  = "loglevel"
	FlagLogFormat = "logformat"
)

func RegisterLoggingFlags(cmd *cobra.Command) {
	enum.Var(cmd.PersistentFlags(), FlagLogLevel, []string{
		"warn",
		"debug",
		"info",
		"error",
	}, "set the log level")
	enum.Var(cmd.PersistentFlags(), FlagLogFormat, []string{"text", "json"}, "set the log format")
}

func GetBaseLogger(cmd *cobra.Command) (*slog.Logger, error) {
	logLevel, err := GetLoggerLevel(cmd)
	if err != nil {
		return nil, err
	}

	format, err := enum.Get(cmd.Flags(), FlagLogFormat)
	if err != nil {
		return nil, err
	}
	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		})
	case "text":
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: logLevel,
		})
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}

	return slog.New(handler), nil
}

// GetLogr returns the base logger as a logr.Logger for the libraries.
// logr verbosity 1 maps to slog debug.
func GetLogr(cmd *cobra.Command) (logr.Logger, error) {
	logger, err := GetBaseLogger(cmd)
	if err != nil {
		return logr.Discard(), err
	}
	return logr.FromSlogHandler(logger.Handler()), nil
}

func GetLoggerLevel(cmd *cobra.Command) (slog.Level, error) {
	logLevel, err := enum.Get(cmd.Flags(), FlagLogLevel)
	if err != nil {
		return slog.LevelWarn, err
	}
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return slog.LevelWarn, fmt.Errorf("invalid log level: %s", logLevel)
	}
	return level, nil
}
