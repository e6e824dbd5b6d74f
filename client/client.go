// Package client assembles the loaders, the resolution driver and the
// default wearables into a running wearable client.
package client

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"ocm.software/open-component-model/streaming/config"
	"ocm.software/open-component-model/streaming/fetch"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/defaults"
	"ocm.software/open-component-model/streaming/wearable/loaders"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

// housekeepingTicks is the number of loop ticks between two cache sweeps.
const housekeepingTicks = 600

type Options struct {
	fetcher  fetch.Client
	embedded fs.FS
	logger   logr.Logger
}

type Option func(*Options)

// WithFetchClient replaces the HTTP client built from the configuration.
func WithFetchClient(c fetch.Client) Option {
	return func(o *Options) {
		o.fetcher = c
	}
}

// WithEmbedded sets the file system the embedded bundles are read from.
func WithEmbedded(fsys fs.FS) Option {
	return func(o *Options) {
		o.embedded = fsys
	}
}

func WithLogger(logger logr.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// Client resolves outfits. Run must be running for Resolve to make progress.
type Client struct {
	Storage  *wearable.Storage
	Budget   *streamable.Budget
	Decoder  *streamable.DecodePool
	Bundles  *streamable.Cache[*wearable.RenderableAsset]
	Driver   *resolution.Driver
	Defaults *defaults.Registry
	Loop     *resolution.Loop

	manifests   *streamable.Cache[*wearable.Manifest]
	definitions *streamable.Cache[loaders.Definitions]
	interval    time.Duration
	logger      logr.Logger
}

// New builds a client from cfg.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	options := Options{}
	for _, opt := range opts {
		opt(&options)
	}
	logger := options.logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	if options.fetcher == nil {
		options.fetcher = fetch.NewHTTPClient(
			fetch.WithTimeout(cfg.HTTP.Timeout.Duration()),
			fetch.WithUserAgent(cfg.HTTP.UserAgent),
			fetch.WithMaxBytes(cfg.HTTP.MaxBytes),
			fetch.WithLogger(logger.WithName("fetch")),
		)
	}
	if options.embedded == nil && cfg.Embedded.Directory != "" {
		options.embedded = os.DirFS(cfg.Embedded.Directory)
	}

	minimum, err := cfg.MinimumManifestVersion()
	if err != nil {
		return nil, err
	}
	matcher, err := wearable.NewPointerMatcher(cfg.Embedded.Patterns...)
	if err != nil {
		return nil, err
	}
	endpoints := loaders.Endpoints{
		Content:      cfg.Endpoints.Content,
		AssetBundles: cfg.Endpoints.AssetBundles,
		Platform:     cfg.Endpoints.Platform,
	}

	c := &Client{
		Storage: wearable.NewStorage(),
		Budget:  streamable.NewBudget(cfg.Budget),
		Decoder: streamable.NewDecodePool(streamable.PoolOptions{
			WorkerCount: cfg.Decode.Workers,
			QueueSize:   cfg.Decode.QueueSize,
			Logger:      logger.WithName("decode"),
		}),
		interval: cfg.Loop.Interval.Duration(),
		logger:   logger,
	}
	cacheOptions := func(name string) streamable.CacheOptions {
		return streamable.CacheOptions{
			Name:        name,
			IdleTTL:     cfg.Cache.IdleTTL.Duration(),
			FailureTTL:  cfg.Cache.FailureTTL.Duration(),
			FailureSize: cfg.Cache.FailureSize,
		}
	}
	c.definitions = streamable.NewCache[loaders.Definitions](cacheOptions("definitions"))
	c.manifests = streamable.NewCache[*wearable.Manifest](cacheOptions("manifests"))
	c.Bundles = streamable.NewCache[*wearable.RenderableAsset](cacheOptions("bundles"))

	c.Driver, err = resolution.NewDriver(resolution.Options{
		Storage: c.Storage,
		Definitions: streamable.NewLoader(streamable.LoaderOptions[loaders.Definitions]{
			Name:     "definitions",
			Strategy: &loaders.DefinitionsStrategy{Client: options.fetcher, Endpoints: endpoints},
			Cache:    c.definitions,
			Budget:   c.Budget,
			Decoder:  c.Decoder,
			Logger:   logger,
		}),
		Manifests: streamable.NewLoader(streamable.LoaderOptions[*wearable.Manifest]{
			Name:     "manifests",
			Strategy: &loaders.ManifestStrategy{Client: options.fetcher, MinimumVersion: minimum},
			Cache:    c.manifests,
			Budget:   c.Budget,
			Decoder:  c.Decoder,
			Logger:   logger,
		}),
		Bundles: streamable.NewLoader(streamable.LoaderOptions[*wearable.RenderableAsset]{
			Name:     "bundles",
			Strategy: &loaders.BundleStrategy{Client: options.fetcher, Embedded: options.embedded},
			Cache:    c.Bundles,
			Budget:   c.Budget,
			Decoder:  c.Decoder,
			Logger:   logger,
		}),
		Endpoints: endpoints,
		Embedded:  matcher,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	c.Defaults, err = defaults.NewRegistry(defaults.RegistryOptions{
		Storage:   c.Storage,
		Requester: c.Driver,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}
	c.Driver.SetDefaults(c.Defaults)

	c.Loop = resolution.NewLoop(c.interval, logger, c.Defaults, c.Driver, &housekeeping{every: housekeepingTicks, sweep: c.sweep})
	return c, nil
}

// Run starts the decode pool and the loop and requests the default
// wearables. It blocks until ctx is done.
func (c *Client) Run(ctx context.Context) error {
	defer c.Defaults.Close()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.Decoder.Start(ctx)
	})
	eg.Go(func() error {
		return c.Loop.Run(ctx)
	})
	eg.Go(func() error {
		return c.Defaults.Start(ctx)
	})
	return eg.Wait()
}

// Resolve requests req and waits for its outcome. The caller releases the
// outcome when done with its assets.
func (c *Client) Resolve(ctx context.Context, req resolution.BatchRequest) (*resolution.Outcome, error) {
	batch := c.Driver.Request(ctx, req)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	done := ctx.Done()
	for {
		var (
			result streamable.Result[*resolution.Outcome]
			ok     bool
		)
		if err := c.Loop.Do(context.WithoutCancel(ctx), func() { result, ok = batch.TryConsume() }); err != nil {
			batch.Cancel()
			return nil, err
		}
		if ok {
			if !result.Succeeded() {
				return nil, result.Err()
			}
			return result.Asset(), nil
		}
		select {
		case <-ticker.C:
		case <-done:
			// the loop publishes the cancellation on its next tick
			done = nil
		}
	}
}

// WaitForDefaults blocks until the default wearables settled and returns
// their state.
func (c *Client) WaitForDefaults(ctx context.Context) (resolution.DefaultsState, error) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if state := c.Defaults.State(); state.Settled() {
			return state, nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return c.Defaults.State(), ctx.Err()
		}
	}
}

// Stats is a snapshot of the client caches.
type Stats struct {
	Entries     int
	Definitions int
	Manifests   int
	Bundles     int
	InFlight    int
	PeakFetches int
}

func (c *Client) Stats() Stats {
	return Stats{
		Entries:     c.Storage.Len(),
		Definitions: c.definitions.Len(),
		Manifests:   c.manifests.Len(),
		Bundles:     c.Bundles.Len(),
		InFlight:    c.Budget.InFlight(),
		PeakFetches: c.Budget.Peak(),
	}
}

func (c *Client) sweep() {
	evicted := c.Driver.Evict()
	unloaded := c.definitions.Unload() + c.manifests.Unload() + c.Bundles.Unload()
	if evicted > 0 || unloaded > 0 {
		c.logger.V(1).Info("swept caches", "evictedEntries", evicted, "unloaded", unloaded)
	}
}

// housekeeping runs sweep every few ticks.
type housekeeping struct {
	every int
	ticks int
	sweep func()
}

func (h *housekeeping) Tick() {
	h.ticks++
	if h.ticks < h.every {
		return
	}
	h.ticks = 0
	h.sweep()
}

// ErrNotFound is returned by Find when no item of the outcome has the URN.
var ErrNotFound = errors.New("item not found in outcome")

// Find returns the item of o with the given URN.
func Find(o *resolution.Outcome, urn string) (resolution.Item, error) {
	want := wearable.NewURN(urn).Shorten()
	for _, item := range o.Items {
		if item.URN == want {
			return item, nil
		}
	}
	return resolution.Item{}, fmt.Errorf("%w: %s", ErrNotFound, want)
}
