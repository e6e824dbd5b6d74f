package wearable

import (
	"sync/atomic"

	"github.com/opencontainers/go-digest"
)

// RenderableAsset is a loaded payload shared by every entry and batch that
// displays it. Holders take one reference each and give it back once.
type RenderableAsset struct {
	Key    string
	Hash   string
	Kind   AssetKind
	Digest digest.Digest
	Data   []byte

	refs     atomic.Int64
	acquired atomic.Int64
	released atomic.Int64
}

// NewRenderableAsset wraps a payload.
func NewRenderableAsset(key, hash string, kind AssetKind, data []byte) *RenderableAsset {
	return &RenderableAsset{
		Key:    key,
		Hash:   hash,
		Kind:   kind,
		Digest: digest.FromBytes(data),
		Data:   data,
	}
}

// Size returns the payload size in bytes.
func (a *RenderableAsset) Size() int { return len(a.Data) }

// AddReference records one more holder.
func (a *RenderableAsset) AddReference() {
	a.refs.Add(1)
	a.acquired.Add(1)
}

// Dereference records that a holder let go. It reports false, and changes
// nothing, when no reference is held.
func (a *RenderableAsset) Dereference() bool {
	for {
		current := a.refs.Load()
		if current <= 0 {
			return false
		}
		if a.refs.CompareAndSwap(current, current-1) {
			a.released.Add(1)
			return true
		}
	}
}

// RefCount returns the number of current holders.
func (a *RenderableAsset) RefCount() int64 { return a.refs.Load() }

// Acquisitions returns how many references were ever taken.
func (a *RenderableAsset) Acquisitions() int64 { return a.acquired.Load() }

// Releases returns how many references were ever given back.
func (a *RenderableAsset) Releases() int64 { return a.released.Load() }
