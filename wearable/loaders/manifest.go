package loaders

import (
	"context"
	"fmt"

	"github.com/Masterminds/semver/v3"

	"ocm.software/open-component-model/streaming/fetch"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

// ManifestIntention requests the bundle manifest of an entity.
type ManifestIntention struct {
	EntityID string
	URL      string
}

func (i ManifestIntention) Key() string { return "manifest:" + i.EntityID }

// ManifestStrategy fetches bundle manifests and rejects manifests built by
// bundle converters older than MinimumVersion.
type ManifestStrategy struct {
	Client         fetch.Client
	MinimumVersion *semver.Version
}

var _ streamable.Strategy[*wearable.Manifest] = (*ManifestStrategy)(nil)

func (s *ManifestStrategy) Fetch(ctx context.Context, intention streamable.Intention) ([]byte, error) {
	in, ok := intention.(ManifestIntention)
	if !ok {
		return nil, fmt.Errorf("unexpected intention %T", intention)
	}
	return s.Client.Fetch(ctx, in.URL)
}

func (s *ManifestStrategy) Decode(_ context.Context, intention streamable.Intention, payload []byte) (*wearable.Manifest, error) {
	manifest, err := wearable.DecodeManifest(payload)
	if err != nil {
		return nil, &streamable.DecodeError{Key: intention.Key(), Err: err}
	}
	if err := manifest.CheckMinimumVersion(s.MinimumVersion); err != nil {
		return nil, &streamable.DecodeError{Key: intention.Key(), Err: err}
	}
	return manifest, nil
}
