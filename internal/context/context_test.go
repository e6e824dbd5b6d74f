package context_test

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/config"
	wctx "ocm.software/open-component-model/streaming/internal/context"
)

type holder struct{ ctx context.Context }

func (h *holder) Context() context.Context       { return h.ctx }
func (h *holder) SetContext(ctx context.Context) { h.ctx = ctx }

func TestRegister(t *testing.T) {
	r := require.New(t)

	var lines []string
	logger := funcr.New(func(prefix, args string) { lines = append(lines, args) }, funcr.Options{})
	cfg := config.Default()
	cfg.Budget = 3

	h := &holder{}
	wctx.Register(h, cfg, logger)

	got, gotLogger := wctx.FromReader(h)
	r.Same(cfg, got)
	gotLogger.Info("registered")
	r.Len(lines, 1)
}

func TestFromReader_Defaults(t *testing.T) {
	r := require.New(t)
	cfg, logger := wctx.FromReader(&holder{})
	r.Equal(config.Default(), cfg)
	r.Equal(logr.Discard(), logger)

	cfg, _ = wctx.FromReader(&holder{ctx: context.Background()})
	r.Equal(8, cfg.Budget)
}
