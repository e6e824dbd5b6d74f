// Package context carries the state shared by all commands of a CLI invocation.
package context

import (
	"context"

	"github.com/go-logr/logr"

	"ocm.software/open-component-model/streaming/config"
)

type Reader interface {
	Context() context.Context
}

type Writer interface {
	SetContext(ctx context.Context)
}

type ReaderWriter interface {
	Reader
	Writer
}

type configKey struct{}

// WithConfig returns a copy of ctx carrying cfg.
func WithConfig(ctx context.Context, cfg *config.Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// ConfigFromContext returns the configuration of ctx or the default one.
func ConfigFromContext(ctx context.Context) *config.Config {
	if ctx != nil {
		if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok && cfg != nil {
			return cfg
		}
	}
	return config.Default()
}

// Register stores cfg and logger in the context of rw.
func Register(rw ReaderWriter, cfg *config.Config, logger logr.Logger) {
	ctx := rw.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rw.SetContext(logr.NewContext(WithConfig(ctx, cfg), logger))
}

// FromReader returns the configuration and logger registered for r.
func FromReader(r Reader) (*config.Config, logr.Logger) {
	ctx := r.Context()
	if ctx == nil {
		return config.Default(), logr.Discard()
	}
	return ConfigFromContext(ctx), logr.FromContextOrDiscard(ctx)
}
