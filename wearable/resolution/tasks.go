package resolution

import (
	"fmt"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/loaders"
)

type definitionTask struct {
	promise  *streamable.Promise[loaders.Definitions]
	pointers []wearable.URN
}

type manifestTask struct {
	promise *streamable.Promise[*wearable.Manifest]
	entry   *wearable.Entry
	bs      wearable.BodyShape
}

type bundleTask struct {
	promise *streamable.Promise[*wearable.RenderableAsset]
	entry   *wearable.Entry
	bs      wearable.BodyShape
	index   int
}

// requestDefinitions always asks the content server. Permitted sources only
// restrict where payloads come from.
func (d *Driver) requestDefinitions(b *Batch, missing []wearable.URN) {
	intention, err := loaders.NewDefinitionsIntention(missing)
	if err != nil {
		d.logger.Error(err, "failed to build definitions intention", "batch", b.ID)
		for _, urn := range missing {
			e, _ := d.opts.Storage.GetOrCreate(urn)
			e.FailDefinition(err)
			e.SetLoading(false)
		}
		return
	}
	d.definitionTasks = append(d.definitionTasks, &definitionTask{
		promise:  d.opts.Definitions.Create(b.ctx, intention, b.request.Partition),
		pointers: missing,
	})
	d.logger.V(1).Info("requested definitions", "batch", b.ID, "pointers", len(missing))
}

func (d *Driver) requestManifest(b *Batch, e *wearable.Entry) {
	def := e.Definition().Asset()
	intention := loaders.ManifestIntention{EntityID: def.ID, URL: d.opts.Endpoints.ManifestURL(def.ID)}
	e.MarkManifestPending()
	e.SetLoading(true)
	d.manifestTasks = append(d.manifestTasks, &manifestTask{
		promise: d.opts.Manifests.Create(b.ctx, intention, b.request.Partition),
		entry:   e,
		bs:      b.request.BodyShape,
	})
}

func (d *Driver) requestBundle(b *Batch, e *wearable.Entry, intention loaders.BundleIntention, index int) {
	d.bundleTasks = append(d.bundleTasks, &bundleTask{
		promise: d.opts.Bundles.Create(b.ctx, intention, b.request.Partition),
		entry:   e,
		bs:      b.request.BodyShape,
		index:   index,
	})
}

func (d *Driver) finalizeDefinitions() {
	pending := d.definitionTasks[:0]
	for _, t := range d.definitionTasks {
		result, ok := t.promise.TryConsume()
		if !ok {
			if t.promise.State() == streamable.StateForgotten {
				for _, urn := range t.pointers {
					if e, found := d.opts.Storage.Get(urn); found && !e.Definition().IsInitialized() {
						e.SetLoading(false)
					}
				}
				continue
			}
			pending = append(pending, t)
			continue
		}
		d.opts.Definitions.Release(t.promise.Intention())

		if !result.Succeeded() {
			d.logger.Error(result.Err(), "failed to load definitions", "pointers", t.pointers)
			for _, urn := range t.pointers {
				e, _ := d.opts.Storage.GetOrCreate(urn)
				e.FailDefinition(result.Err())
				e.SetLoading(false)
			}
			continue
		}

		requested := make(map[wearable.URN]struct{}, len(t.pointers))
		for _, urn := range t.pointers {
			requested[urn] = struct{}{}
		}
		for _, def := range result.Asset() {
			urn := def.URN()
			if _, ok := requested[urn]; !ok {
				d.logger.V(1).Info("storing definition that was not requested", "urn", urn)
			}
			e := d.opts.Storage.GetOrAddByDefinition(def)
			e.SetLoading(false)
			delete(requested, urn)
		}
		for urn := range requested {
			e, _ := d.opts.Storage.GetOrCreate(urn)
			e.FailDefinition(&streamable.FetchError{URL: string(urn), StatusCode: 404, Err: errDefinitionAbsent})
			e.SetLoading(false)
			d.logger.Error(errDefinitionAbsent, "pointer has no definition", "urn", urn)
		}
	}
	d.definitionTasks = pending
}

func (d *Driver) finalizeManifests(defaults DefaultsProvider) {
	pending := d.manifestTasks[:0]
	for _, t := range d.manifestTasks {
		e := t.entry
		result, ok := t.promise.TryConsume()
		if !ok {
			if t.promise.State() == streamable.StateForgotten {
				e.ResetManifest()
				e.SetLoading(false)
				continue
			}
			pending = append(pending, t)
			continue
		}

		e.SetManifest(result)
		if result.Succeeded() {
			d.opts.Manifests.Release(t.promise.Intention())
		} else {
			d.logger.Error(result.Err(), "failed to load manifest", "urn", e.URN())
			d.setDefaults(e, t.bs, defaults, &streamable.DependencyFailedError{Dependency: "manifest", Err: result.Err()})
		}
		e.SetLoading(false)
	}
	d.manifestTasks = pending
}

func (d *Driver) finalizeBundles(defaults DefaultsProvider) {
	pending := d.bundleTasks[:0]
	for _, t := range d.bundleTasks {
		e := t.entry
		result, ok := t.promise.TryConsume()
		if !ok {
			if t.promise.State() == streamable.StateForgotten {
				// the slot stays uninitialized so that a later batch loads it again
				e.SetLoading(false)
				continue
			}
			pending = append(pending, t)
			continue
		}

		switch {
		case e.Assets(t.bs).ReplacedWithDefaults:
			if result.Succeeded() {
				d.opts.Bundles.Release(t.promise.Intention())
			}
		case result.Succeeded():
			for _, s := range e.SharedBodyShapes(t.bs) {
				slots := e.Assets(s)
				slots.EnsureSize(t.index + 1)
				slots.Results[t.index] = result
			}
		default:
			d.logger.Error(result.Err(), "failed to load bundle", "urn", e.URN(), "key", t.promise.Key())
			d.setDefaults(e, t.bs, defaults, &streamable.DependencyFailedError{Dependency: t.promise.Key(), Err: result.Err()})
		}
		e.SetLoading(!e.AllAssetsLoaded(t.bs))
	}
	d.bundleTasks = pending
}

// setDefaults replaces every slot of the item with the default of its
// category. Body shapes sharing their models are replaced together. Without
// ready defaults a failure placeholder is written instead.
func (d *Driver) setDefaults(e *wearable.Entry, bs wearable.BodyShape, defaults DefaultsProvider, cause error) {
	shapes := e.SharedBodyShapes(bs)
	category := e.Category()

	d.releaseOwned(e, shapes)
	for _, s := range shapes {
		*e.Assets(s) = defaultSlots(s, category, defaults, cause)
	}

	DefaultSubstitutionCounterTotal.WithLabelValues(string(category)).Inc()
	d.logger.V(1).Info("replaced with defaults", "urn", e.URN(), "bodyShapes", shapes, "cause", cause.Error())
}

// holdDefaults resolves item vi of the batch with its default and leaves the
// shared entry untouched, so batches permitting other sources still load it.
func (d *Driver) holdDefaults(b *Batch, vi int, defaults DefaultsProvider, cause error) {
	e := b.visible[vi]
	slots := defaultSlots(b.request.BodyShape, e.Category(), defaults, cause)
	for _, a := range slots.Held() {
		a.AddReference()
	}
	b.held[vi] = slots
	b.resolved.Set(b.bits[vi])

	DefaultSubstitutionCounterTotal.WithLabelValues(string(e.Category())).Inc()
	d.logger.V(1).Info("defaults held for batch", "batch", b.ID, "urn", e.URN(), "cause", cause.Error())
}

func defaultSlots(bs wearable.BodyShape, category wearable.Category, defaults DefaultsProvider, cause error) wearable.AssetSlots {
	if defaults != nil {
		if replacement, ok := defaults.Default(bs, category); ok && !replacement.IsEmpty() {
			slots := replacement.Clone()
			slots.ReplacedWithDefaults = true
			return slots
		}
	}
	return wearable.AssetSlots{
		Results: []streamable.Result[*wearable.RenderableAsset]{
			streamable.Failure[*wearable.RenderableAsset](fmt.Errorf("%w: %w", ErrDefaultsUnavailable, cause)),
		},
		ReplacedWithDefaults: true,
	}
}

// releaseOwned gives back the loader references of payloads that are about to be dropped.
func (d *Driver) releaseOwned(e *wearable.Entry, shapes []wearable.BodyShape) {
	released := map[*wearable.RenderableAsset]struct{}{}
	for _, s := range shapes {
		slots := e.Assets(s)
		if slots.ReplacedWithDefaults {
			continue
		}
		for _, a := range slots.Held() {
			if _, ok := released[a]; ok {
				continue
			}
			released[a] = struct{}{}
			d.opts.Bundles.Release(streamable.KeyIntention(a.Key))
		}
	}
}

// Evict drops settled entries that neither a holder nor a pending batch
// references and gives their loader references back. Call it on the loop.
func (d *Driver) Evict() int {
	pending := map[wearable.URN]struct{}{}
	for _, b := range d.batches {
		for _, urn := range b.urns {
			pending[urn] = struct{}{}
		}
	}
	keep := func(e *wearable.Entry) bool {
		_, ok := pending[e.URN()]
		return ok
	}
	return d.opts.Storage.Evict(keep, func(e *wearable.Entry) {
		for _, a := range e.OwnedAssets() {
			d.opts.Bundles.Release(streamable.KeyIntention(a.Key))
		}
	})
}
