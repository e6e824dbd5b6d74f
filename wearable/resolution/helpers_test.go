package resolution_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/synctest"

	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/loaders"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

var endpoints = loaders.Endpoints{
	Content:      "https://peer.test/content",
	AssetBundles: "https://ab.test",
	Platform:     "_linux",
}

// fakeServer answers definition, manifest and bundle requests from memory.
// Requests for a gated URL block until the gate is closed.
type fakeServer struct {
	mu          sync.Mutex
	definitions map[wearable.URN]*wearable.Definition
	files       map[string][]byte
	gates       map[string]chan struct{}
	requests    map[string]int
	active      int
	peak        int
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		definitions: map[wearable.URN]*wearable.Definition{},
		files:       map[string][]byte{},
		gates:       map[string]chan struct{}{},
		requests:    map[string]int{},
	}
}

func (s *fakeServer) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	s.mu.Lock()
	s.requests[rawURL]++
	s.active++
	s.peak = max(s.peak, s.active)
	gate := s.gates[rawURL]
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.active--
		s.mu.Unlock()
	}()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.HasPrefix(rawURL, endpoints.Content+"/entities/active?") {
		query, err := url.ParseQuery(strings.SplitN(rawURL, "?", 2)[1])
		if err != nil {
			return nil, err
		}
		found := []*wearable.Definition{}
		for _, pointer := range query["pointer"] {
			if def, ok := s.definitions[wearable.URN(pointer)]; ok {
				found = append(found, def)
			}
		}
		return json.Marshal(found)
	}

	data, ok := s.files[rawURL]
	if !ok {
		return nil, &streamable.FetchError{URL: rawURL, StatusCode: 404, Err: errors.New("not found")}
	}
	return data, nil
}

func (s *fakeServer) FetchAssetBinary(ctx context.Context, rawURL, _ string) ([]byte, error) {
	return s.Fetch(ctx, rawURL)
}

func (s *fakeServer) addDefinition(def *wearable.Definition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.definitions[def.URN()] = def
}

func (s *fakeServer) addFile(rawURL string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[rawURL] = data
}

func (s *fakeServer) removeFile(rawURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, rawURL)
}

func (s *fakeServer) gate(rawURL string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gates[rawURL] = gate
	return gate
}

func (s *fakeServer) requestCount(rawURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[rawURL]
}

func (s *fakeServer) definitionRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for u, c := range s.requests {
		if strings.Contains(u, "/entities/active?") {
			n += c
		}
	}
	return n
}

func (s *fakeServer) peakActive() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peak
}

// fakeDefaults is a settled defaults provider handing out one asset per category.
type fakeDefaults struct {
	mu     sync.Mutex
	state  resolution.DefaultsState
	assets map[wearable.Category]*wearable.RenderableAsset
}

func newFakeDefaults(state resolution.DefaultsState) *fakeDefaults {
	return &fakeDefaults{state: state, assets: map[wearable.Category]*wearable.RenderableAsset{}}
}

func (f *fakeDefaults) State() resolution.DefaultsState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeDefaults) setState(state resolution.DefaultsState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = state
}

func (f *fakeDefaults) Default(_ wearable.BodyShape, category wearable.Category) (wearable.AssetSlots, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != resolution.DefaultsReady {
		return wearable.AssetSlots{}, false
	}
	a, ok := f.assets[category]
	if !ok {
		a = wearable.NewRenderableAsset("default:"+string(category), "default", wearable.AssetKindBundle, []byte("default"))
		f.assets[category] = a
	}
	return wearable.AssetSlots{Results: []streamable.Result[*wearable.RenderableAsset]{streamable.Success(a)}}, true
}

type harness struct {
	server  *fakeServer
	storage *wearable.Storage
	budget  *streamable.Budget
	bundles *streamable.Cache[*wearable.RenderableAsset]
	driver  *resolution.Driver
}

func newHarness(t *testing.T, budget int, defaults resolution.DefaultsProvider) *harness {
	t.Helper()
	h := &harness{
		server:  newFakeServer(),
		storage: wearable.NewStorage(),
		budget:  streamable.NewBudget(budget),
		bundles: streamable.NewCache[*wearable.RenderableAsset](streamable.CacheOptions{Name: "bundles"}),
	}
	driver, err := resolution.NewDriver(resolution.Options{
		Storage: h.storage,
		Definitions: streamable.NewLoader(streamable.LoaderOptions[loaders.Definitions]{
			Name:     "definitions",
			Strategy: &loaders.DefinitionsStrategy{Client: h.server, Endpoints: endpoints},
			Budget:   h.budget,
		}),
		Manifests: streamable.NewLoader(streamable.LoaderOptions[*wearable.Manifest]{
			Name:     "manifests",
			Strategy: &loaders.ManifestStrategy{Client: h.server},
			Cache:    streamable.NewCache[*wearable.Manifest](streamable.CacheOptions{Name: "manifests"}),
			Budget:   h.budget,
		}),
		Bundles: streamable.NewLoader(streamable.LoaderOptions[*wearable.RenderableAsset]{
			Name:     "bundles",
			Strategy: &loaders.BundleStrategy{Client: h.server},
			Cache:    h.bundles,
			Budget:   h.budget,
		}),
		Endpoints: endpoints,
		Defaults:  defaults,
	})
	require.NoError(t, err)
	h.driver = driver
	return h
}

// settle ticks the driver and lets every load goroutine run until it blocks.
func (h *harness) settle(ticks int) {
	for range ticks {
		h.driver.Tick()
		synctest.Wait()
	}
}

// runUntilPublished ticks until the batch published its outcome.
func (h *harness) runUntilPublished(t *testing.T, b *resolution.Batch) {
	t.Helper()
	for range 30 {
		h.driver.Tick()
		synctest.Wait()
		if b.Promise().State() != streamable.StateCreated {
			return
		}
	}
	t.Fatal("batch did not publish")
}

func rep(main string, contents []string, shapes ...wearable.BodyShape) wearable.Representation {
	r := wearable.Representation{MainFile: main, Contents: contents}
	for _, bs := range shapes {
		r.BodyShapes = append(r.BodyShapes, string(bs.URN()))
	}
	return r
}

func definition(urn string, category wearable.Category, reps ...wearable.Representation) *wearable.Definition {
	def := &wearable.Definition{
		ID:       "bafy-" + urn[strings.LastIndex(urn, ":")+1:],
		Content:  []wearable.ContentFile{},
		Metadata: wearable.Metadata{ID: urn, Data: wearable.Data{Category: category, Representations: reps}},
	}
	for _, r := range reps {
		for _, file := range r.Contents {
			if _, ok := def.ContentHash(file); !ok {
				def.Content = append(def.Content, wearable.ContentFile{File: file, Hash: "hash-" + file})
			}
		}
	}
	return def
}

// rawWearable is served as raw files below a content download URL.
func rawWearable(s *fakeServer, urn string, category wearable.Category, shapes ...wearable.BodyShape) *wearable.Definition {
	name := urn[strings.LastIndex(urn, ":")+1:]
	main := name + ".glb"
	def := definition(urn, category, rep(main, []string{main}, shapes...))
	def.ContentDownloadURL = "https://peer.test/content/contents/"
	s.addDefinition(def)
	s.addFile(endpoints.RawURL(def.ContentDownloadURL, "hash-"+main), []byte("glTF"+name))
	return def
}

// bundledWearable is served as a platform bundle listed in a manifest.
func bundledWearable(s *fakeServer, urn string, category wearable.Category, shapes ...wearable.BodyShape) *wearable.Definition {
	name := urn[strings.LastIndex(urn, ":")+1:]
	main := name + ".glb"
	def := definition(urn, category, rep(main, []string{main}, shapes...))
	s.addDefinition(def)
	s.addFile(endpoints.ManifestURL(def.ID), []byte(`{"version": "v16", "files": ["`+endpoints.BundleName("hash-"+main)+`"]}`))
	s.addFile(endpoints.BundleURL("v16", "hash-"+main), []byte("bundle "+name))
	return def
}

func consume(t *testing.T, b *resolution.Batch) streamable.Result[*resolution.Outcome] {
	t.Helper()
	result, ok := b.TryConsume()
	require.True(t, ok, "batch has not published")
	return result
}
