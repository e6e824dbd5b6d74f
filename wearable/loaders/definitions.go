// Package loaders implements the fetch and decode strategies of the wearable
// pipeline: definition lists, bundle manifests and asset payloads.
package loaders

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"slices"

	"github.com/cyberphone/json-canonicalization/go/src/webpki.org/jsoncanonicalizer"

	"ocm.software/open-component-model/streaming/fetch"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

// Definitions is the asset type of the definition loader.
type Definitions = []*wearable.Definition

// DefinitionsIntention requests the definitions of several pointers with one request.
type DefinitionsIntention struct {
	Pointers []wearable.URN
	key      string
}

var _ streamable.Intention = DefinitionsIntention{}

// NewDefinitionsIntention creates the intention. The same set of pointers
// always yields the same key, regardless of order.
func NewDefinitionsIntention(pointers []wearable.URN) (DefinitionsIntention, error) {
	sorted := slices.Clone(pointers)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)

	key, err := buildDefinitionsKey(sorted)
	if err != nil {
		return DefinitionsIntention{}, err
	}
	return DefinitionsIntention{Pointers: sorted, key: key}, nil
}

func (i DefinitionsIntention) Key() string { return i.key }

// buildDefinitionsKey canonicalizes the request using JCS (RFC 8785) before
// hashing to ensure consistent keys.
func buildDefinitionsKey(pointers []wearable.URN) (string, error) {
	raw, err := json.Marshal(map[string]any{"pointers": pointers})
	if err != nil {
		return "", fmt.Errorf("failed to marshal pointers: %w", err)
	}

	canonicalJSON, err := jsoncanonicalizer.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize pointers: %w", err)
	}

	hasher := fnv.New64a()
	// can safely ignore because fnv.Write never actually returns an error
	_, _ = hasher.Write(canonicalJSON)

	return fmt.Sprintf("definitions:%016x", hasher.Sum64()), nil
}

// DefinitionsStrategy fetches definition lists from the content server.
type DefinitionsStrategy struct {
	Client    fetch.Client
	Endpoints Endpoints
}

var _ streamable.Strategy[Definitions] = (*DefinitionsStrategy)(nil)

func (s *DefinitionsStrategy) Fetch(ctx context.Context, intention streamable.Intention) ([]byte, error) {
	in, ok := intention.(DefinitionsIntention)
	if !ok {
		return nil, fmt.Errorf("unexpected intention %T", intention)
	}
	return s.Client.Fetch(ctx, s.Endpoints.DefinitionsURL(in.Pointers))
}

func (s *DefinitionsStrategy) Decode(_ context.Context, intention streamable.Intention, payload []byte) (Definitions, error) {
	definitions, err := wearable.DecodeDefinitions(payload)
	if err != nil {
		return nil, &streamable.DecodeError{Key: intention.Key(), Err: err}
	}
	return definitions, nil
}
