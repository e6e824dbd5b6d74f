package wearable_test

import (
	"errors"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

func definition(urn string, category wearable.Category, reps ...wearable.Representation) *wearable.Definition {
	def := &wearable.Definition{
		ID: "bafy-" + urn,
		Metadata: wearable.Metadata{
			ID:   urn,
			Data: wearable.Data{Category: category, Representations: reps},
		},
	}
	for _, rep := range reps {
		for _, file := range rep.Contents {
			if _, ok := def.ContentHash(file); !ok {
				def.Content = append(def.Content, wearable.ContentFile{File: file, Hash: "hash-" + file})
			}
		}
	}
	return def
}

func rep(main string, shapes ...wearable.BodyShape) wearable.Representation {
	r := wearable.Representation{MainFile: main, Contents: []string{main}}
	for _, bs := range shapes {
		r.BodyShapes = append(r.BodyShapes, string(bs.URN()))
	}
	return r
}

func resolvedEntry(def *wearable.Definition) *wearable.Entry {
	e := wearable.NewEntry(def.URN())
	e.ResolveDefinition(def)
	return e
}

func TestURN_Shorten(t *testing.T) {
	tests := []struct {
		in   string
		want wearable.URN
	}{
		{in: "urn:decentraland:matic:collections-v2:0xabc:1:42", want: "urn:decentraland:matic:collections-v2:0xabc:1"},
		{in: "URN:Decentraland:Matic:Collections-V2:0xABC:1", want: "urn:decentraland:matic:collections-v2:0xabc:1"},
		{in: "urn:decentraland:ethereum:collections-v1:halloween:hat:7", want: "urn:decentraland:ethereum:collections-v1:halloween:hat"},
		{in: "urn:decentraland:off-chain:base-avatars:BaseMale", want: wearable.MaleURN},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, wearable.NewURN(tt.in).Shorten())
		})
	}
	assert.False(t, wearable.NewURN("").IsValid())
	assert.True(t, wearable.MaleURN.IsValid())
}

func TestParseBodyShape(t *testing.T) {
	bs, err := wearable.ParseBodyShape("urn:decentraland:off-chain:base-avatars:BaseFemale")
	require.NoError(t, err)
	assert.Equal(t, wearable.Female, bs)
	assert.Equal(t, wearable.Male, bs.Other())

	_, err = wearable.ParseBodyShape("robot")
	assert.Error(t, err)
}

func TestDefinition_Models(t *testing.T) {
	r := require.New(t)

	shared := definition("urn:x:shared", wearable.CategoryUpperBody, rep("shirt.glb", wearable.Male, wearable.Female))
	r.True(shared.IsUnisex())
	r.True(shared.HasSameModelsForAllGenders())

	split := definition("urn:x:split", wearable.CategoryUpperBody,
		rep("shirt_m.glb", wearable.Male), rep("shirt_f.glb", wearable.Female))
	r.True(split.IsUnisex())
	r.False(split.HasSameModelsForAllGenders())
	hash, ok := split.MainFileHash(wearable.Female)
	r.True(ok)
	r.Equal("hash-shirt_f.glb", hash)

	maleOnly := definition("urn:x:male", wearable.CategoryHat, rep("hat.glb", wearable.Male))
	r.False(maleOnly.IsUnisex())
	_, ok = maleOnly.MainFileHash(wearable.Female)
	r.False(ok)
}

func TestDefinition_FacialFeatureMask(t *testing.T) {
	r := require.New(t)
	eyes := rep("eyes.png", wearable.Male, wearable.Female)
	eyes.Contents = append(eyes.Contents, "eyes_mask.png")
	def := definition("urn:x:eyes", wearable.CategoryEyes, eyes)

	r.Equal(2, def.Category().SlotCount())
	hash, ok := def.MaskHash(wearable.Male)
	r.True(ok)
	r.Equal("hash-eyes_mask.png", hash)

	noMask := definition("urn:x:mouth", wearable.CategoryMouth, rep("mouth.png", wearable.Male))
	_, ok = noMask.MaskHash(wearable.Male)
	r.False(ok)

	r.Equal(wearable.AssetKindTexture, wearable.KindOf("eyes.png"))
	r.Equal(wearable.AssetKindModel, wearable.KindOf("shirt.GLB"))
}

func TestDefinition_HiddenCategoriesOverrides(t *testing.T) {
	r := rep("helmet.glb", wearable.Male, wearable.Female)
	def := definition("urn:x:helmet", wearable.CategoryHelmet, r)
	def.Metadata.Data.Hides = []wearable.Category{wearable.CategoryHair}
	def.Metadata.Data.Replaces = []wearable.Category{wearable.CategoryHat}
	assert.ElementsMatch(t, []wearable.Category{wearable.CategoryHair, wearable.CategoryHat}, def.HiddenCategories(wearable.Male))

	def.Metadata.Data.Representations[0].OverrideHides = []wearable.Category{wearable.CategoryEyewear}
	assert.ElementsMatch(t, []wearable.Category{wearable.CategoryEyewear, wearable.CategoryHat}, def.HiddenCategories(wearable.Male))
}

func TestCategoryHidingRules(t *testing.T) {
	hat := definition("urn:x:hat", wearable.CategoryHat, rep("hat.glb", wearable.Female))
	hat.Metadata.Data.Hides = []wearable.Category{wearable.CategoryHair, wearable.CategoryBodyShape}
	hair := definition("urn:x:hair", wearable.CategoryHair, rep("hair.glb", wearable.Female))
	shirt := definition("urn:x:shirt", wearable.CategoryUpperBody, rep("shirt.glb", wearable.Female))
	body := definition(string(wearable.FemaleURN), wearable.CategoryBodyShape, rep("body.glb", wearable.Female))
	failed := wearable.NewEntry("urn:x:broken")
	failed.FailDefinition(errors.New("gone"))

	entries := []*wearable.Entry{resolvedEntry(hair), resolvedEntry(hat), resolvedEntry(shirt), resolvedEntry(body), failed}

	t.Run("hides", func(t *testing.T) {
		visible, hidden := wearable.CategoryHidingRules{}.Visible(wearable.Female, entries, nil)
		var urns []wearable.URN
		for _, e := range visible {
			urns = append(urns, e.URN())
		}
		assert.Equal(t, []wearable.URN{"urn:x:hat", "urn:x:shirt", wearable.FemaleURN}, urns)
		assert.Equal(t, []wearable.Category{wearable.CategoryHair}, hidden)
	})

	t.Run("force render", func(t *testing.T) {
		visible, hidden := wearable.CategoryHidingRules{}.Visible(wearable.Female, entries, []wearable.Category{wearable.CategoryHair})
		assert.Len(t, visible, 4)
		assert.Empty(t, hidden)
	})
}

func TestDecodeDefinitions(t *testing.T) {
	payload := []byte(`[{
		"id": "bafkreier7sbttkajs77gj7q4shlxvo7k3rcpojpukqo7xggghleurx6uki",
		"content": [{"file": "BaseFemale.glb", "hash": "bafkreicjhpml7xdib2knhbl2qn7sgqq7cudwys75xwgejdd47cxp3dkbc4"}],
		"manifestVersion": "v16",
		"metadata": {
			"id": "urn:decentraland:off-chain:base-avatars:BaseFemale",
			"data": {
				"category": "body_shape",
				"representations": [{
					"bodyShapes": ["urn:decentraland:off-chain:base-avatars:BaseFemale"],
					"mainFile": "BaseFemale.glb",
					"contents": ["BaseFemale.glb"]
				}]
			}
		}
	}]`)

	defs, err := wearable.DecodeDefinitions(payload)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, wearable.FemaleURN, defs[0].URN())
	assert.Equal(t, wearable.CategoryBodyShape, defs[0].Category())
	assert.Equal(t, "v16", defs[0].ManifestVersion)

	_, err = wearable.DecodeDefinitions([]byte(`[{"id": "x", "content": [], "metadata": {"id": "not-a-urn", "data": {"category": "hat", "representations": []}}}]`))
	assert.Error(t, err)

	_, err = wearable.DecodeDefinitions([]byte(`{`))
	assert.Error(t, err)
}

func TestDecodeManifest(t *testing.T) {
	m, err := wearable.DecodeManifest([]byte(`{"version": "v16", "files": ["hash_windows"], "exitCode": 0}`))
	require.NoError(t, err)
	assert.True(t, m.Has("HASH_windows"))
	assert.False(t, m.Has("other_windows"))

	minimum := semver.MustParse("v15")
	assert.NoError(t, m.CheckMinimumVersion(minimum))
	old := &wearable.Manifest{Version: "v14"}
	assert.ErrorContains(t, old.CheckMinimumVersion(minimum), "older than")

	_, err = wearable.DecodeManifest([]byte(`{"version": "v16", "files": [], "exitCode": 2}`))
	assert.ErrorContains(t, err, "exit code 2")

	_, err = wearable.DecodeManifest([]byte(`{"files": []}`))
	assert.Error(t, err)
}

func TestRenderableAsset_References(t *testing.T) {
	a := wearable.NewRenderableAsset("k", "h", wearable.AssetKindBundle, []byte("payload"))
	a.AddReference()
	a.AddReference()
	assert.True(t, a.Dereference())
	assert.True(t, a.Dereference())
	assert.False(t, a.Dereference(), "over-release must not go negative")
	assert.Equal(t, int64(0), a.RefCount())
	assert.Equal(t, a.Acquisitions(), a.Releases())
	assert.Equal(t, 7, a.Size())
}

func TestStorage_Evict(t *testing.T) {
	s := wearable.NewStorage()
	held, _ := s.GetOrCreate("urn:x:held")
	held.ResolveDefinition(definition("urn:x:held", wearable.CategoryHat))
	asset := wearable.NewRenderableAsset("k", "h", wearable.AssetKindBundle, nil)
	slots := held.Assets(wearable.Male)
	slots.EnsureSize(1)
	slots.Results[0] = successAsset(asset)
	asset.AddReference()

	idle, _ := s.GetOrCreate("urn:x:idle")
	idle.ResolveDefinition(definition("urn:x:idle", wearable.CategoryHat))

	loading, created := s.GetOrCreate("urn:x:loading")
	require.True(t, created)
	loading.SetLoading(true)

	// the substituted default is referenced by its owner, not by the entry
	replaced, _ := s.GetOrCreate("urn:x:replaced")
	replaced.ResolveDefinition(definition("urn:x:replaced", wearable.CategoryHat))
	fallback := wearable.NewRenderableAsset("default:hat", "d", wearable.AssetKindBundle, nil)
	fallback.AddReference()
	defaulted := replaced.Assets(wearable.Male)
	defaulted.Results = []streamable.Result[*wearable.RenderableAsset]{successAsset(fallback)}
	defaulted.ReplacedWithDefaults = true
	assert.Empty(t, replaced.OwnedAssets())

	pinned, _ := s.GetOrCreate("urn:x:pinned")
	pinned.ResolveDefinition(definition("urn:x:pinned", wearable.CategoryHat))
	keep := func(e *wearable.Entry) bool { return e.URN() == "urn:x:pinned" }

	var evicted []wearable.URN
	n := s.Evict(keep, func(e *wearable.Entry) { evicted = append(evicted, e.URN()) })
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []wearable.URN{"urn:x:idle", "urn:x:replaced"}, evicted)
	assert.Equal(t, 3, s.Len())

	assert.Equal(t, 1, s.Evict(nil, nil), "without keep the pinned entry goes too")
	assert.EqualValues(t, 1, fallback.RefCount())
}

func TestPointerMatcher(t *testing.T) {
	m, err := wearable.NewPointerMatcher("urn:decentraland:off-chain:base-avatars:*")
	require.NoError(t, err)
	assert.True(t, m.Match(wearable.MaleURN))
	assert.False(t, m.Match("urn:decentraland:off-chain:base-avatars:hats:extra"))
	assert.False(t, m.Match("urn:decentraland:matic:collections-v2:0xabc:1"))

	var none *wearable.PointerMatcher
	assert.False(t, none.Match(wearable.MaleURN))
}
