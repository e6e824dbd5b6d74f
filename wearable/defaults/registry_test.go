package defaults_test

import (
	"context"
	"testing"
	"testing/fstest"
	"testing/synctest"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
	"ocm.software/open-component-model/streaming/wearable/defaults"
	"ocm.software/open-component-model/streaming/wearable/loaders"
	"ocm.software/open-component-model/streaming/wearable/resolution"
)

const (
	maleGLB   = "bafkreicxwj4mhufwziveusb733zs3ly2vz7evnpsbybto3izqtfrbr7umq"
	femaleGLB = "bafkreicjhpml7xdib2knhbl2qn7sgqq7cudwys75xwgejdd47cxp3dkbc4"
)

func newDriver(t *testing.T, storage *wearable.Storage, embedded fstest.MapFS) *resolution.Driver {
	t.Helper()
	matcher, err := wearable.NewPointerMatcher("urn:decentraland:off-chain:base-avatars:*")
	require.NoError(t, err)
	budget := streamable.NewBudget(2)
	driver, err := resolution.NewDriver(resolution.Options{
		Storage: storage,
		Definitions: streamable.NewLoader(streamable.LoaderOptions[loaders.Definitions]{
			Strategy: &loaders.DefinitionsStrategy{},
			Budget:   budget,
		}),
		Manifests: streamable.NewLoader(streamable.LoaderOptions[*wearable.Manifest]{
			Strategy: &loaders.ManifestStrategy{},
			Budget:   budget,
		}),
		Bundles: streamable.NewLoader(streamable.LoaderOptions[*wearable.RenderableAsset]{
			Strategy: &loaders.BundleStrategy{Embedded: embedded},
			Cache:    streamable.NewCache[*wearable.RenderableAsset](streamable.CacheOptions{Name: "bundles"}),
			Budget:   budget,
		}),
		Embedded: matcher,
	})
	require.NoError(t, err)
	return driver
}

func bootstrap(t *testing.T, embedded fstest.MapFS) (*defaults.Registry, *resolution.Driver, *resolution.Loop) {
	t.Helper()
	storage := wearable.NewStorage()
	driver := newDriver(t, storage, embedded)
	registry, err := defaults.NewRegistry(defaults.RegistryOptions{
		Storage:   storage,
		Requester: driver,
		Sources:   wearable.SourceEmbedded,
	})
	require.NoError(t, err)
	driver.SetDefaults(registry)
	return registry, driver, resolution.NewLoop(0, logr.Discard(), registry, driver)
}

func settle(loop *resolution.Loop, registry *defaults.Registry) {
	for range 20 {
		loop.Tick()
		synctest.Wait()
		if registry.State().Settled() {
			return
		}
	}
}

func TestRegistry_Bootstrap(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry, _, loop := bootstrap(t, fstest.MapFS{
			maleGLB:   {Data: []byte("male body")},
			femaleGLB: {Data: []byte("female body")},
		})
		assert.Equal(t, resolution.DefaultsPending, registry.State())
		_, ok := registry.Default(wearable.Male, wearable.CategoryBodyShape)
		assert.False(t, ok, "no defaults before bootstrap")

		require.NoError(t, registry.Start(t.Context()))
		assert.Equal(t, resolution.DefaultsInProgress, registry.State())
		require.NoError(t, registry.Start(t.Context()), "starting twice is a no-op")

		settle(loop, registry)
		require.Equal(t, resolution.DefaultsReady, registry.State())

		male, ok := registry.Default(wearable.Male, wearable.CategoryBodyShape)
		require.True(t, ok)
		require.True(t, male.Results[0].Succeeded())
		assert.Equal(t, "male body", string(male.Results[0].Asset().Data))
		assert.Equal(t, int64(1), male.Results[0].Asset().RefCount(), "the registry holds its defaults")

		female, ok := registry.Default(wearable.Female, wearable.CategoryBodyShape)
		require.True(t, ok)
		assert.Equal(t, "female body", string(female.Results[0].Asset().Data))

		hat, ok := registry.Default(wearable.Male, wearable.CategoryHat)
		require.True(t, ok)
		require.Len(t, hat.Results, 1)
		assert.Equal(t, defaults.EmptyKey, hat.Results[0].Asset().Key)

		eyes, ok := registry.Default(wearable.Female, wearable.CategoryEyes)
		require.True(t, ok)
		assert.Len(t, eyes.Results, 2, "facial features get an empty mask slot")

		registry.Close()
		assert.Zero(t, male.Results[0].Asset().RefCount())
	})
}

func TestRegistry_StartDefersWritesToTheLoop(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		storage := wearable.NewStorage()
		driver := newDriver(t, storage, fstest.MapFS{maleGLB: {Data: []byte("male")}, femaleGLB: {Data: []byte("female")}})
		registry, err := defaults.NewRegistry(defaults.RegistryOptions{
			Storage:   storage,
			Requester: driver,
			Sources:   wearable.SourceEmbedded,
		})
		require.NoError(t, err)
		loop := resolution.NewLoop(0, logr.Discard(), registry, driver)

		require.NoError(t, registry.Start(t.Context()))
		assert.Zero(t, storage.Len(), "nothing is stored before the loop ticks")
		assert.Zero(t, driver.Pending())

		loop.Tick()
		synctest.Wait()
		_, ok := storage.Get(wearable.MaleURN)
		assert.True(t, ok)
		_, ok = storage.Get(wearable.FemaleURN)
		assert.True(t, ok)

		settle(loop, registry)
		assert.Equal(t, resolution.DefaultsReady, registry.State())
		registry.Close()
	})
}

func TestRegistry_MissingEmbeddedBundles(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry, _, loop := bootstrap(t, fstest.MapFS{})
		require.NoError(t, registry.Start(t.Context()))
		settle(loop, registry)
		require.Equal(t, resolution.DefaultsReady, registry.State())

		body, ok := registry.Default(wearable.Male, wearable.CategoryBodyShape)
		require.True(t, ok)
		assert.Equal(t, defaults.EmptyKey, body.Results[0].Asset().Key, "a body that failed to load falls back to the empty asset")
	})
}

func TestRegistry_CancelledBootstrapFails(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry, _, loop := bootstrap(t, fstest.MapFS{maleGLB: {Data: []byte("male")}, femaleGLB: {Data: []byte("female")}})
		ctx, cancel := context.WithCancel(t.Context())
		require.NoError(t, registry.Start(ctx))
		cancel()
		settle(loop, registry)
		assert.Equal(t, resolution.DefaultsFailed, registry.State())
		_, ok := registry.Default(wearable.Male, wearable.CategoryHat)
		assert.False(t, ok)
	})
}

func TestRegistry_FallbackBatchesWaitForDefaults(t *testing.T) {
	synctest.Test(t, func(t *testing.T) {
		registry, driver, loop := bootstrap(t, fstest.MapFS{maleGLB: {Data: []byte("male")}, femaleGLB: {Data: []byte("female")}})
		batch := driver.Request(t.Context(), resolution.BatchRequest{
			Pointers:           []string{string(wearable.MaleURN)},
			BodyShape:          wearable.Male,
			Sources:            wearable.SourceEmbedded,
			FallbackToDefaults: true,
		})
		loop.Tick()
		synctest.Wait()
		assert.Equal(t, streamable.StateCreated, batch.Promise().State())

		require.NoError(t, registry.Start(t.Context()))
		settle(loop, registry)
		for range 5 {
			loop.Tick()
			synctest.Wait()
		}
		result, ok := batch.TryConsume()
		require.True(t, ok)
		require.True(t, result.Succeeded(), result.String())
		assert.Equal(t, "male", string(result.Asset().Items[0].Assets.Results[0].Asset().Data))
		result.Asset().Release()
	})
}

func TestNewRegistry_RejectsInvalidDefinitions(t *testing.T) {
	_, err := defaults.NewRegistry(defaults.RegistryOptions{
		Storage:     wearable.NewStorage(),
		Requester:   &resolution.Driver{},
		Definitions: []byte(`{}`),
	})
	assert.Error(t, err)

	registry, err := defaults.NewRegistry(defaults.RegistryOptions{
		Storage:     wearable.NewStorage(),
		Requester:   &resolution.Driver{},
		Definitions: []byte(`[]`),
	})
	require.NoError(t, err)
	assert.Error(t, registry.Start(t.Context()), "a body shape without definition cannot bootstrap")
	assert.Equal(t, resolution.DefaultsFailed, registry.State())
}
