package wearable

import (
	"ocm.software/open-component-model/streaming/streamable"
)

// AssetSlots are the loaded payloads of one body shape: slot 0 is the main
// file, slot 1 the mask of a facial feature.
type AssetSlots struct {
	Results              []streamable.Result[*RenderableAsset]
	ReplacedWithDefaults bool
}

// EnsureSize grows the slots to at least n entries.
func (s *AssetSlots) EnsureSize(n int) {
	for len(s.Results) < n {
		s.Results = append(s.Results, streamable.Result[*RenderableAsset]{})
	}
}

// IsEmpty reports whether no slot was allocated yet.
func (s *AssetSlots) IsEmpty() bool { return len(s.Results) == 0 }

// Held returns the payloads of every successful slot.
func (s *AssetSlots) Held() []*RenderableAsset {
	var held []*RenderableAsset
	for _, r := range s.Results {
		if r.Succeeded() && r.Asset() != nil {
			held = append(held, r.Asset())
		}
	}
	return held
}

// Clone copies the slots so that the copy can be modified independently.
func (s *AssetSlots) Clone() AssetSlots {
	return AssetSlots{
		Results:              append([]streamable.Result[*RenderableAsset](nil), s.Results...),
		ReplacedWithDefaults: s.ReplacedWithDefaults,
	}
}

// Entry is the resolution state of one wearable, shared by every batch that
// references its URN. It is written by the resolution loop only.
type Entry struct {
	urn        URN
	definition streamable.Result[*Definition]
	manifest   *streamable.Result[*Manifest]
	assets     [BodyShapeCount]AssetSlots
	loading    bool
}

// NewEntry creates an empty entry.
func NewEntry(urn URN) *Entry {
	return &Entry{urn: urn}
}

func (e *Entry) URN() URN { return e.urn }

// Definition returns the definition result; uninitialized while unknown.
func (e *Entry) Definition() streamable.Result[*Definition] { return e.definition }

// ResolveDefinition stores def unless a definition outcome exists already.
func (e *Entry) ResolveDefinition(def *Definition) bool {
	if e.definition.IsInitialized() {
		return false
	}
	e.definition = streamable.Success(def)
	return true
}

// FailDefinition marks the definition as failed for good.
func (e *Entry) FailDefinition(err error) {
	if e.definition.IsInitialized() {
		return
	}
	e.definition = streamable.Failure[*Definition](err)
}

func (e *Entry) IsLoading() bool { return e.loading }

func (e *Entry) SetLoading(loading bool) { e.loading = loading }

// Manifest returns nil when no manifest was requested, an uninitialized
// result while it loads and the outcome afterwards.
func (e *Entry) Manifest() *streamable.Result[*Manifest] { return e.manifest }

// MarkManifestPending records that a manifest load was issued.
func (e *Entry) MarkManifestPending() {
	pending := streamable.Result[*Manifest]{}
	e.manifest = &pending
}

// SetManifest stores the manifest outcome.
func (e *Entry) SetManifest(result streamable.Result[*Manifest]) { e.manifest = &result }

// ResetManifest forgets a manifest request that never completed.
func (e *Entry) ResetManifest() { e.manifest = nil }

// ManifestFailed reports whether the manifest load failed.
func (e *Entry) ManifestFailed() bool {
	return e.manifest != nil && e.manifest.IsInitialized() && !e.manifest.Succeeded()
}

// Assets returns the slots of bs.
func (e *Entry) Assets(bs BodyShape) *AssetSlots { return &e.assets[bs] }

// Category returns the category of a resolved definition.
func (e *Entry) Category() Category {
	if def := e.definition.Asset(); def != nil {
		return def.Category()
	}
	return ""
}

// HasSameModelsForAllGenders reports whether both body shapes share their slots.
func (e *Entry) HasSameModelsForAllGenders() bool {
	def := e.definition.Asset()
	return def != nil && def.HasSameModelsForAllGenders()
}

// SharedBodyShapes returns the body shapes whose slots change together with bs.
func (e *Entry) SharedBodyShapes(bs BodyShape) []BodyShape {
	if e.HasSameModelsForAllGenders() {
		return BodyShapes[:]
	}
	return []BodyShape{bs}
}

// HasEssentialAssetsResolved reports whether the main slot of bs has an
// outcome. The mask of a facial feature is optional.
func (e *Entry) HasEssentialAssetsResolved(bs BodyShape) bool {
	slots := &e.assets[bs]
	return len(slots.Results) > 0 && slots.Results[0].IsInitialized()
}

// AllAssetsLoaded reports whether every slot of bs has an outcome.
func (e *Entry) AllAssetsLoaded(bs BodyShape) bool {
	slots := &e.assets[bs]
	if len(slots.Results) == 0 {
		return false
	}
	for _, r := range slots.Results {
		if !r.IsInitialized() {
			return false
		}
	}
	return true
}

// OwnedAssets returns the payloads loaded for the entry, one element per
// loader reference the entry holds. Substituted defaults belong to the
// defaults registry and are left out.
func (e *Entry) OwnedAssets() []*RenderableAsset {
	shapes := BodyShapes[:]
	if e.HasSameModelsForAllGenders() {
		shapes = shapes[:1]
	}
	var owned []*RenderableAsset
	for _, bs := range shapes {
		if e.assets[bs].ReplacedWithDefaults {
			continue
		}
		owned = append(owned, e.assets[bs].Held()...)
	}
	return owned
}
