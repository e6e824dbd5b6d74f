// Package defaults bootstraps the wearables substituted for items that
// failed to load.
package defaults

import (
	"context"
	_ "embed"
	"fmt"
	"sync"

	"github.com/go-logr/logr"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

//go:embed definitions.json
var embeddedDefinitions []byte

// EmptyKey is the key of the empty fallback asset.
const EmptyKey = "bundle:empty"

// Requester schedules batches, usually a *resolution.Driver.
type Requester interface {
	Request(ctx context.Context, req resolution.BatchRequest) *resolution.Batch
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Storage   *wearable.Storage
	Requester Requester
	// Sources permitted for the defaults. Defaults to all sources.
	Sources wearable.Source
	// Definitions overrides the built in definitions.
	Definitions []byte
	Logger      logr.Logger
}

// Registry resolves the body shape of each gender once and hands out the
// default of a (body shape, category) pair. Categories without a built in
// default get the empty asset.
type Registry struct {
	storage     *wearable.Storage
	requester   Requester
	sources     wearable.Source
	definitions []*wearable.Definition
	empty       *wearable.RenderableAsset
	logger      logr.Logger

	mu    sync.RWMutex
	state resolution.DefaultsState
	// ctx scopes the batches requested on the first tick after Start.
	ctx       context.Context
	requested bool
	batches   [wearable.BodyShapeCount]*resolution.Batch
	outcomes  [wearable.BodyShapeCount]*resolution.Outcome
	consumed  [wearable.BodyShapeCount]bool
	failed    bool
	bodies    [wearable.BodyShapeCount]wearable.AssetSlots
}

var (
	_ resolution.DefaultsProvider = (*Registry)(nil)
	_ resolution.System           = (*Registry)(nil)
)

// NewRegistry parses the default definitions.
func NewRegistry(opts RegistryOptions) (*Registry, error) {
	if opts.Storage == nil || opts.Requester == nil {
		return nil, fmt.Errorf("storage and requester are required")
	}
	if opts.Sources == 0 {
		opts.Sources = wearable.SourceAll
	}
	raw := opts.Definitions
	if raw == nil {
		raw = embeddedDefinitions
	}
	definitions, err := wearable.DecodeDefinitions(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode default definitions: %w", err)
	}
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}

	return &Registry{
		storage:     opts.Storage,
		requester:   opts.Requester,
		sources:     opts.Sources,
		definitions: definitions,
		empty:       wearable.NewRenderableAsset(EmptyKey, "empty", wearable.AssetKindBundle, nil),
		logger:      logger.WithName("defaults"),
		state:       resolution.DefaultsPending,
	}, nil
}

// Start schedules the bootstrap: the next Tick stores the default definitions
// and requests one batch per body shape, so that every entry is written on
// the loop. Starting twice is a no-op.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != resolution.DefaultsPending {
		return nil
	}
	for _, bs := range wearable.BodyShapes {
		if _, ok := r.bodyDefinition(bs); !ok {
			r.state = resolution.DefaultsFailed
			return fmt.Errorf("no default definition for body shape %s", bs)
		}
	}
	r.ctx = ctx
	r.state = resolution.DefaultsInProgress
	return nil
}

func (r *Registry) request() {
	for _, bs := range wearable.BodyShapes {
		def, _ := r.bodyDefinition(bs)
		r.storage.GetOrAddByDefinition(def)
		r.batches[bs] = r.requester.Request(r.ctx, resolution.BatchRequest{
			Pointers:  []string{string(def.URN())},
			BodyShape: bs,
			Sources:   r.sources,
			Partition: streamable.TopPriority,
		})
	}
	r.requested = true
	r.logger.V(1).Info("requested default wearables", "sources", r.sources)
}

func (r *Registry) bodyDefinition(bs wearable.BodyShape) (*wearable.Definition, bool) {
	for _, def := range r.definitions {
		if def.Category() == wearable.CategoryBodyShape && def.URN() == bs.URN() {
			return def, true
		}
	}
	return nil, false
}

// Tick requests the default batches once started and then consumes their
// results. Once every batch published, the registry is Ready, or Failed if
// any of them failed.
func (r *Registry) Tick() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != resolution.DefaultsInProgress {
		return
	}
	if !r.requested {
		r.request()
		return
	}

	done := true
	for _, bs := range wearable.BodyShapes {
		if r.consumed[bs] {
			continue
		}
		result, ok := r.batches[bs].TryConsume()
		if !ok {
			done = false
			continue
		}
		r.consumed[bs] = true
		if !result.Succeeded() {
			r.failed = true
			r.logger.Error(result.Err(), "failed to resolve default wearables", "bodyShape", bs)
			continue
		}
		outcome := result.Asset()
		r.outcomes[bs] = outcome
		for _, item := range outcome.Items {
			if item.Definition != nil && item.Definition.Category() == wearable.CategoryBodyShape {
				r.bodies[bs] = item.Assets.Clone()
			}
		}
	}
	if !done {
		return
	}

	if r.failed {
		r.state = resolution.DefaultsFailed
	} else {
		r.state = resolution.DefaultsReady
	}
	r.logger.Info("default wearables settled", "state", r.state)
}

func (r *Registry) State() resolution.DefaultsState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Default returns the slots substituted for category worn with bs.
func (r *Registry) Default(bs wearable.BodyShape, category wearable.Category) (wearable.AssetSlots, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.state != resolution.DefaultsReady {
		return wearable.AssetSlots{}, false
	}
	if category == wearable.CategoryBodyShape {
		if body := r.bodies[bs]; !body.IsEmpty() && body.Results[0].Succeeded() {
			return body.Clone(), true
		}
	}
	return r.emptySlots(category), true
}

func (r *Registry) emptySlots(category wearable.Category) wearable.AssetSlots {
	slots := wearable.AssetSlots{
		Results: []streamable.Result[*wearable.RenderableAsset]{streamable.Success(r.empty)},
	}
	for len(slots.Results) < category.SlotCount() {
		slots.Results = append(slots.Results, streamable.Success[*wearable.RenderableAsset](nil))
	}
	return slots
}

// Definitions returns the default definitions.
func (r *Registry) Definitions() []*wearable.Definition {
	return r.definitions
}

// Close gives back the references held on the default assets.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, o := range r.outcomes {
		if o != nil {
			o.Release()
			r.outcomes[i] = nil
		}
	}
}
