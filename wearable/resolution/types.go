package resolution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"ocm.software/open-component-model/streaming/internal/bitmask"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

var (
	// ErrBatchCancelled is the failure published by a cancelled batch.
	ErrBatchCancelled = errors.New("batch cancelled")
	// ErrDefaultsUnavailable is stored in the slots of a failed item when no
	// default could be substituted.
	ErrDefaultsUnavailable = errors.New("default wearables unavailable")
	// ErrInvalidPointer is published by a batch that names an empty or malformed pointer.
	ErrInvalidPointer = errors.New("invalid pointer")
	// ErrNoPermittedSource is returned when none of the permitted sources can serve a file.
	ErrNoPermittedSource = errors.New("no permitted source")

	errMainFileNotFound = errors.New("main file hash not found")
	errNotInManifest    = errors.New("bundle not listed in manifest")
	errDefinitionAbsent = errors.New("definition not found")
)

// DefaultsState is the bootstrap state of a DefaultsProvider.
type DefaultsState int

const (
	DefaultsPending DefaultsState = iota
	DefaultsInProgress
	DefaultsReady
	DefaultsFailed
)

func (s DefaultsState) String() string {
	switch s {
	case DefaultsPending:
		return "Pending"
	case DefaultsInProgress:
		return "InProgress"
	case DefaultsReady:
		return "Ready"
	case DefaultsFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Settled reports whether the bootstrap finished, successfully or not.
func (s DefaultsState) Settled() bool {
	return s == DefaultsReady || s == DefaultsFailed
}

// DefaultsProvider hands out the fallback assets of failed items.
type DefaultsProvider interface {
	State() DefaultsState
	// Default returns the slots substituted for category worn with bs.
	// It reports false unless the state is DefaultsReady.
	Default(bs wearable.BodyShape, category wearable.Category) (wearable.AssetSlots, bool)
}

// BatchRequest describes an outfit to resolve.
type BatchRequest struct {
	Pointers  []string
	BodyShape wearable.BodyShape
	Sources   wearable.Source
	// FallbackToDefaults holds the batch back until the defaults are settled.
	FallbackToDefaults bool
	// ForceRender lists categories that are rendered even when hidden.
	ForceRender []wearable.Category
	Partition   streamable.Partition
}

// Batch is one resolution request in flight. Its state is owned by the loop.
type Batch struct {
	ID      uuid.UUID
	request BatchRequest
	urns    []wearable.URN
	ctx     context.Context
	cancel  context.CancelFunc
	promise *streamable.Promise[*Outcome]
	started time.Time

	definitionsKnown bool
	visible          []*wearable.Entry
	bits             []int
	hidden           []wearable.Category
	resolved         *bitmask.Set
	held             []wearable.AssetSlots
	published        bool
}

func newBatch(ctx context.Context, req BatchRequest) *Batch {
	id := uuid.New()
	bctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		ID:       id,
		request:  req,
		ctx:      bctx,
		cancel:   cancel,
		started:  time.Now(),
		resolved: bitmask.New(len(req.Pointers)),
	}
	b.promise = streamable.NewDeferred[*Outcome](context.WithoutCancel(ctx), streamable.KeyIntention("batch:"+id.String()), req.Partition)
	return b
}

// Request returns the request the batch was created from.
func (b *Batch) Request() BatchRequest { return b.request }

// Promise returns the promise of the batch outcome.
func (b *Batch) Promise() *streamable.Promise[*Outcome] { return b.promise }

// TryConsume hands out the outcome exactly once.
func (b *Batch) TryConsume() (streamable.Result[*Outcome], bool) { return b.promise.TryConsume() }

// Cancel stops the batch. The next tick publishes ErrBatchCancelled and
// forgets every pending load of the batch.
func (b *Batch) Cancel() { b.cancel() }

// IsResolved reports whether pointer i was marked resolved. Read it on the loop.
func (b *Batch) IsResolved(i int) bool { return b.resolved.IsSet(i) }

// ResolvedCount returns the number of pointers marked resolved. Read it on the loop.
func (b *Batch) ResolvedCount() int { return b.resolved.Count() }

// Item is one rendered wearable of an Outcome.
type Item struct {
	URN        wearable.URN
	Definition *wearable.Definition
	Assets     wearable.AssetSlots
}

// Outcome is the published result of a batch. The outcome holds a reference
// on every payload of its items until Release is called.
type Outcome struct {
	BatchID   uuid.UUID
	BodyShape wearable.BodyShape
	Items     []Item
	Hidden    []wearable.Category

	once sync.Once
}

// Assets returns the payloads held by the outcome.
func (o *Outcome) Assets() []*wearable.RenderableAsset {
	var assets []*wearable.RenderableAsset
	for i := range o.Items {
		assets = append(assets, o.Items[i].Assets.Held()...)
	}
	return assets
}

// Release gives back the references of the outcome. It is safe to call more than once.
func (o *Outcome) Release() {
	o.once.Do(func() {
		for _, a := range o.Assets() {
			a.Dereference()
		}
	})
}
