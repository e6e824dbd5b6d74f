package wearable

import (
	"slices"
	"strings"
	"sync"
)

// Storage holds one Entry per URN for the lifetime of the session.
type Storage struct {
	mu      sync.RWMutex
	entries map[URN]*Entry
}

// NewStorage creates an empty storage.
func NewStorage() *Storage {
	return &Storage{entries: make(map[URN]*Entry)}
}

// GetOrCreate returns the entry of urn and creates an empty one on first use.
func (s *Storage) GetOrCreate(urn URN) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[urn]; ok {
		return e, false
	}
	e := NewEntry(urn)
	s.entries[urn] = e
	return e, true
}

// Get returns the entry of urn.
func (s *Storage) Get(urn URN) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[urn]
	return e, ok
}

// GetOrAddByDefinition returns the entry for def with the definition resolved.
func (s *Storage) GetOrAddByDefinition(def *Definition) *Entry {
	e, _ := s.GetOrCreate(def.URN())
	e.ResolveDefinition(def)
	return e
}

// Len returns the number of entries.
func (s *Storage) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// All returns every entry ordered by URN.
func (s *Storage) All() []*Entry {
	s.mu.RLock()
	all := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		all = append(all, e)
	}
	s.mu.RUnlock()

	slices.SortFunc(all, func(a, b *Entry) int { return strings.Compare(string(a.urn), string(b.urn)) })
	return all
}

// Evict removes settled entries that no holder references and keep does not
// retain. onEvict runs for every removed entry before it is dropped. It
// returns the number of removed entries.
func (s *Storage) Evict(keep func(*Entry) bool, onEvict func(*Entry)) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for urn, e := range s.entries {
		if e.loading || !e.definition.IsInitialized() {
			continue
		}
		if keep != nil && keep(e) {
			continue
		}
		if slices.ContainsFunc(e.OwnedAssets(), func(a *RenderableAsset) bool { return a.RefCount() > 0 }) {
			continue
		}
		if onEvict != nil {
			onEvict(e)
		}
		delete(s.entries, urn)
		evicted++
	}
	return evicted
}
