package resolution

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/loaders"
)

// Options configures a Driver.
type Options struct {
	Storage     *wearable.Storage
	Definitions *streamable.Loader[loaders.Definitions]
	Manifests   *streamable.Loader[*wearable.Manifest]
	Bundles     *streamable.Loader[*wearable.RenderableAsset]
	Endpoints   loaders.Endpoints
	// Embedded selects the pointers whose bundles ship with the client.
	Embedded *wearable.PointerMatcher
	// Hiding defaults to wearable.CategoryHidingRules.
	Hiding   wearable.HidingRules
	Defaults DefaultsProvider
	Logger   logr.Logger
}

// Driver advances batches on every Tick.
type Driver struct {
	opts   Options
	logger logr.Logger

	mu       sync.Mutex
	incoming []*Batch
	defaults DefaultsProvider

	batches         []*Batch
	definitionTasks []*definitionTask
	manifestTasks   []*manifestTask
	bundleTasks     []*bundleTask
}

// NewDriver creates a driver. Storage and the three loaders are required.
func NewDriver(opts Options) (*Driver, error) {
	if opts.Storage == nil || opts.Definitions == nil || opts.Manifests == nil || opts.Bundles == nil {
		return nil, fmt.Errorf("storage and loaders are required")
	}
	if opts.Hiding == nil {
		opts.Hiding = wearable.CategoryHidingRules{}
	}
	logger := opts.Logger
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	return &Driver{
		opts:     opts,
		logger:   logger.WithName("resolution"),
		defaults: opts.Defaults,
	}, nil
}

// SetDefaults installs the defaults provider. Batches that fall back to
// defaults wait for it to settle.
func (d *Driver) SetDefaults(p DefaultsProvider) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.defaults = p
}

// Request schedules a batch. The batch is picked up by the next tick.
func (d *Driver) Request(ctx context.Context, req BatchRequest) *Batch {
	b := newBatch(ctx, req)
	for i, pointer := range req.Pointers {
		urn := wearable.NewURN(pointer).Shorten()
		if !urn.IsValid() {
			err := fmt.Errorf("%w %d: %q", ErrInvalidPointer, i, pointer)
			d.logger.Error(err, "rejected batch", "batch", b.ID)
			d.publish(b, streamable.Failure[*Outcome](err))
			return b
		}
		b.urns = append(b.urns, urn)
	}

	d.mu.Lock()
	d.incoming = append(d.incoming, b)
	d.mu.Unlock()
	d.logger.V(1).Info("batch requested", "batch", b.ID, "pointers", len(req.Pointers), "bodyShape", req.BodyShape)
	return b
}

// Pending returns the number of batches that have not published yet. Call it on the loop.
func (d *Driver) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.batches) + len(d.incoming)
}

// Tick runs one pass: definitions are finalized, batches advanced, then
// manifest and bundle results are written into their entries.
func (d *Driver) Tick() {
	d.mu.Lock()
	d.batches = append(d.batches, d.incoming...)
	d.incoming = nil
	defaults := d.defaults
	d.mu.Unlock()

	d.finalizeDefinitions()
	d.resolveBatches(defaults)
	d.finalizeManifests(defaults)
	d.finalizeBundles(defaults)

	PendingTasksGauge.WithLabelValues(stageDefinitions).Set(float64(len(d.definitionTasks)))
	PendingTasksGauge.WithLabelValues(stageManifests).Set(float64(len(d.manifestTasks)))
	PendingTasksGauge.WithLabelValues(stageBundles).Set(float64(len(d.bundleTasks)))
}

func (d *Driver) resolveBatches(defaults DefaultsProvider) {
	slices.SortStableFunc(d.batches, func(a, b *Batch) int {
		switch {
		case a.request.Partition.Less(b.request.Partition):
			return -1
		case b.request.Partition.Less(a.request.Partition):
			return 1
		default:
			return 0
		}
	})
	for _, b := range d.batches {
		d.resolveBatch(b, defaults)
	}
	d.batches = slices.DeleteFunc(d.batches, func(b *Batch) bool { return b.published })
}

func (d *Driver) resolveBatch(b *Batch, defaults DefaultsProvider) {
	if b.published {
		return
	}
	if b.ctx.Err() != nil {
		d.cancelBatch(b)
		return
	}
	if b.request.FallbackToDefaults && defaults != nil && !defaults.State().Settled() {
		return
	}

	if !b.definitionsKnown {
		if !d.awaitDefinitions(b) {
			return
		}
		if failed := d.failedDefinitions(b); len(failed) > 0 {
			err := &streamable.DependencyFailedError{
				Dependency: "definitions",
				Err:        fmt.Errorf("no definition for %v", failed),
			}
			d.logger.Error(err, "batch failed", "batch", b.ID)
			d.publish(b, streamable.Failure[*Outcome](err))
			return
		}
		d.computeVisible(b)
	}

	bs := b.request.BodyShape
	for vi, e := range b.visible {
		idx := b.bits[vi]
		if b.resolved.IsSet(idx) || e.IsLoading() {
			continue
		}
		if slots := e.Assets(bs); !slots.ReplacedWithDefaults && !e.AllAssetsLoaded(bs) && !d.hasPermittedSource(b, e) {
			d.holdDefaults(b, vi, defaults, fmt.Errorf("%s: %w among %s", e.URN(), ErrNoPermittedSource, b.request.Sources))
			continue
		}
		if d.startAssetLoadIfRequired(b, e, defaults) {
			continue
		}
		if !e.HasEssentialAssetsResolved(bs) {
			continue
		}

		snapshot := e.Assets(bs).Clone()
		for _, a := range snapshot.Held() {
			a.AddReference()
		}
		b.held[vi] = snapshot
		if !b.resolved.Set(idx) {
			d.logger.Error(fmt.Errorf("bit %d set twice", idx), "inconsistent batch state", "batch", b.ID)
		}
	}

	for vi := range b.visible {
		if !b.resolved.IsSet(b.bits[vi]) {
			return
		}
	}
	d.publish(b, streamable.Success(d.outcome(b)))
}

// awaitDefinitions reports whether every pointer of the batch has a definition
// outcome. Missing definitions are requested with a single intention.
func (d *Driver) awaitDefinitions(b *Batch) bool {
	var missing []wearable.URN
	finished := 0
	for _, urn := range b.urns {
		e, _ := d.opts.Storage.GetOrCreate(urn)
		switch {
		case e.Definition().IsInitialized():
			finished++
		case !e.IsLoading():
			e.SetLoading(true)
			missing = append(missing, urn)
		}
	}
	if len(missing) > 0 {
		d.requestDefinitions(b, missing)
	}
	return finished == len(b.urns)
}

func (d *Driver) failedDefinitions(b *Batch) []wearable.URN {
	var failed []wearable.URN
	for _, urn := range b.urns {
		if e, ok := d.opts.Storage.Get(urn); ok && !e.Definition().Succeeded() {
			failed = append(failed, urn)
		}
	}
	return failed
}

func (d *Driver) computeVisible(b *Batch) {
	entries := make([]*wearable.Entry, 0, len(b.urns))
	for _, urn := range b.urns {
		e, _ := d.opts.Storage.Get(urn)
		entries = append(entries, e)
	}
	b.visible, b.hidden = d.opts.Hiding.Visible(b.request.BodyShape, entries, b.request.ForceRender)
	b.bits = make([]int, len(b.visible))
	for vi, e := range b.visible {
		b.bits[vi] = slices.Index(b.urns, e.URN())
	}
	b.held = make([]wearable.AssetSlots, len(b.visible))
	b.definitionsKnown = true
	if len(b.hidden) > 0 {
		d.logger.V(1).Info("categories hidden", "batch", b.ID, "hidden", b.hidden)
	}
}

func (d *Driver) outcome(b *Batch) *Outcome {
	o := &Outcome{
		BatchID:   b.ID,
		BodyShape: b.request.BodyShape,
		Hidden:    b.hidden,
		Items:     make([]Item, 0, len(b.visible)),
	}
	for vi, e := range b.visible {
		o.Items = append(o.Items, Item{
			URN:        e.URN(),
			Definition: e.Definition().Asset(),
			Assets:     b.held[vi],
		})
	}
	b.held = nil
	return o
}

func (d *Driver) cancelBatch(b *Batch) {
	for vi := range b.held {
		for _, a := range b.held[vi].Held() {
			a.Dereference()
		}
	}
	b.held = nil
	err := fmt.Errorf("%w: %w", ErrBatchCancelled, &streamable.CancelledError{
		Key:   b.promise.Key(),
		Cause: context.Cause(b.ctx),
	})
	d.logger.V(1).Info("batch cancelled", "batch", b.ID, "resolved", b.resolved.Count())
	d.publish(b, streamable.Failure[*Outcome](err))
}

func (d *Driver) publish(b *Batch, result streamable.Result[*Outcome]) {
	if b.published {
		return
	}
	b.published = true
	b.cancel()
	if !b.promise.Resolve(result) {
		if result.Succeeded() {
			result.Asset().Release()
		}
		return
	}

	outcome := outcomeSuccess
	switch {
	case streamable.CategoryOf(result.Err()) == streamable.CategoryCancelled:
		outcome = outcomeCancelled
	case !result.Succeeded():
		outcome = outcomeFailure
	}
	BatchesPublishedCounterTotal.WithLabelValues(outcome).Inc()
	BatchDurationHistogram.WithLabelValues(outcome).Observe(time.Since(b.started).Seconds())
	d.logger.V(1).Info("batch published", "batch", b.ID, "outcome", outcome)
}

// startAssetLoadIfRequired issues the next load of an item. It reports true
// while the item waits for a load.
func (d *Driver) startAssetLoadIfRequired(b *Batch, e *wearable.Entry, defaults DefaultsProvider) bool {
	bs := b.request.BodyShape
	def := e.Definition().Asset()
	slots := e.Assets(bs)

	if slots.ReplacedWithDefaults {
		return false
	}
	if e.ManifestFailed() {
		d.setDefaults(e, bs, defaults, &streamable.DependencyFailedError{Dependency: "manifest", Err: e.Manifest().Err()})
		return false
	}

	if d.servesEmbedded(b, e) || def.ContentDownloadURL != "" || !b.request.Sources.Has(wearable.SourceWeb) {
		return d.requestAssets(b, e, defaults)
	}

	switch manifest := e.Manifest(); {
	case manifest == nil && def.ManifestVersion != "":
		e.SetManifest(streamable.Success(wearable.NewManifestFromVersion(def.ManifestVersion)))
	case manifest == nil:
		d.requestManifest(b, e)
		return true
	case !manifest.IsInitialized():
		return true
	}
	return d.requestAssets(b, e, defaults)
}

func (d *Driver) servesEmbedded(b *Batch, e *wearable.Entry) bool {
	return b.request.Sources.Has(wearable.SourceEmbedded) && d.opts.Embedded.Match(e.URN())
}

// hasPermittedSource reports whether the batch may load the payloads of e at all.
func (d *Driver) hasPermittedSource(b *Batch, e *wearable.Entry) bool {
	return d.servesEmbedded(b, e) || b.request.Sources.Has(wearable.SourceWeb)
}

// requestAssets creates the bundle promises of every empty slot of the item.
func (d *Driver) requestAssets(b *Batch, e *wearable.Entry, defaults DefaultsProvider) bool {
	bs := b.request.BodyShape
	def := e.Definition().Asset()
	size := def.Category().SlotCount()
	shapes := e.SharedBodyShapes(bs)
	for _, s := range shapes {
		e.Assets(s).EnsureSize(size)
	}
	slots := e.Assets(bs)

	created := false
	if !slots.Results[0].IsInitialized() {
		hash, ok := def.MainFileHash(bs)
		if !ok {
			d.setDefaults(e, bs, defaults, fmt.Errorf("%s: %w", e.URN(), errMainFileNotFound))
			return false
		}
		file, _ := def.MainFile(bs)
		intention, err := d.bundleIntention(b, e, hash, file)
		if err != nil {
			d.setDefaults(e, bs, defaults, err)
			return false
		}
		d.requestBundle(b, e, intention, 0)
		created = true
	}

	if size > 1 && !slots.Results[1].IsInitialized() {
		hash, ok := def.MaskHash(bs)
		if !ok {
			for _, s := range shapes {
				e.Assets(s).Results[1] = streamable.Success[*wearable.RenderableAsset](nil)
			}
		} else {
			file, _ := def.MaskFile(bs)
			intention, err := d.bundleIntention(b, e, hash, file)
			if err != nil {
				d.setDefaults(e, bs, defaults, err)
				return created
			}
			d.requestBundle(b, e, intention, 1)
			created = true
		}
	}

	if created {
		e.SetLoading(true)
	}
	return created
}

func (d *Driver) bundleIntention(b *Batch, e *wearable.Entry, hash, file string) (loaders.BundleIntention, error) {
	def := e.Definition().Asset()
	web := b.request.Sources.Has(wearable.SourceWeb)
	name := d.opts.Endpoints.BundleName(hash)

	switch {
	case d.servesEmbedded(b, e):
		intention := loaders.BundleIntention{Name: name, Hash: hash, Kind: wearable.AssetKindBundle, EmbeddedPath: hash}
		if web && def.ManifestVersion != "" {
			intention.URL = d.opts.Endpoints.BundleURL(def.ManifestVersion, hash)
		}
		return intention, nil
	case web && def.ContentDownloadURL != "":
		return loaders.BundleIntention{
			Name:       hash,
			Hash:       hash,
			Kind:       wearable.KindOf(file),
			URL:        d.opts.Endpoints.RawURL(def.ContentDownloadURL, hash),
			VerifyHash: hash,
		}, nil
	case web && e.Manifest() != nil && e.Manifest().Succeeded():
		manifest := e.Manifest().Asset()
		if !manifest.Has(name) {
			return loaders.BundleIntention{}, &streamable.DependencyFailedError{
				Dependency: "manifest " + def.ID,
				Err:        fmt.Errorf("%w: %s", errNotInManifest, name),
			}
		}
		return loaders.BundleIntention{
			Name: name,
			Hash: hash,
			Kind: wearable.AssetKindBundle,
			URL:  d.opts.Endpoints.BundleURL(manifest.Version, hash),
		}, nil
	default:
		return loaders.BundleIntention{}, fmt.Errorf("%s: %w among %s", e.URN(), ErrNoPermittedSource, b.request.Sources)
	}
}
