package loaders

import (
	"net/url"
	"strings"

	"ocm.software/open-component-model/streaming/wearable"
)

// Endpoints builds the URLs of the content and bundle servers.
type Endpoints struct {
	// Content is the base URL of the content server, e.g. https://peer.decentraland.org/content.
	Content string
	// AssetBundles is the base URL of the bundle CDN.
	AssetBundles string
	// Platform is the suffix of platform specific bundles, e.g. "_windows".
	Platform string
}

// DefinitionsURL returns the URL listing the active entities of pointers.
func (e Endpoints) DefinitionsURL(pointers []wearable.URN) string {
	q := url.Values{}
	for _, p := range pointers {
		q.Add("pointer", string(p))
	}
	return strings.TrimSuffix(e.Content, "/") + "/entities/active?" + q.Encode()
}

// ManifestURL returns the URL of the bundle manifest of an entity.
func (e Endpoints) ManifestURL(entityID string) string {
	return strings.TrimSuffix(e.AssetBundles, "/") + "/manifest/" + entityID + e.Platform + ".json"
}

// BundleName returns the platform qualified file name of a bundle.
func (e Endpoints) BundleName(hash string) string {
	return hash + e.Platform
}

// BundleURL returns the URL of a bundle built with version.
func (e Endpoints) BundleURL(version, hash string) string {
	return strings.TrimSuffix(e.AssetBundles, "/") + "/" + version + "/" + e.BundleName(hash)
}

// RawURL returns the URL of a raw file below a content download URL.
func (e Endpoints) RawURL(contentURL, hash string) string {
	return strings.TrimSuffix(contentURL, "/") + "/" + hash
}
