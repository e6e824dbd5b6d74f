package loaders

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"ocm.software/open-component-model/streaming/fetch"
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

var (
	pngSignature = []byte("\x89PNG\r\n\x1a\n")
	glbMagic     = []byte("glTF")
)

// BundleIntention requests one asset payload. EmbeddedPath and URL name the
// places it may come from; the embedded copy is preferred.
type BundleIntention struct {
	// Name is the file name of the payload, a content hash with an optional platform suffix.
	Name string
	Hash string
	Kind wearable.AssetKind
	// URL is the remote location. Empty when the web source is not permitted.
	URL string
	// EmbeddedPath is the file within the embedded assets. Empty when not permitted.
	EmbeddedPath string
	// VerifyHash is checked against the downloaded payload when set.
	VerifyHash string
}

func (i BundleIntention) Key() string { return string(i.Kind) + ":" + i.Name }

// BundleStrategy loads payloads from the embedded assets or the web.
type BundleStrategy struct {
	Client   fetch.Client
	Embedded fs.FS
}

var _ streamable.Strategy[*wearable.RenderableAsset] = (*BundleStrategy)(nil)

func (s *BundleStrategy) Fetch(ctx context.Context, intention streamable.Intention) ([]byte, error) {
	in, ok := intention.(BundleIntention)
	if !ok {
		return nil, fmt.Errorf("unexpected intention %T", intention)
	}

	if in.EmbeddedPath != "" && s.Embedded != nil {
		data, err := fs.ReadFile(s.Embedded, in.EmbeddedPath)
		switch {
		case err == nil:
			return data, nil
		case in.URL == "":
			return nil, embeddedError(in.EmbeddedPath, err)
		}
	}

	if in.URL == "" {
		return nil, &streamable.FetchError{URL: in.Name, StatusCode: http.StatusNotFound, Err: errors.New("no permitted source")}
	}
	return s.Client.FetchAssetBinary(ctx, in.URL, in.VerifyHash)
}

func (s *BundleStrategy) Decode(_ context.Context, intention streamable.Intention, payload []byte) (*wearable.RenderableAsset, error) {
	in, ok := intention.(BundleIntention)
	if !ok {
		return nil, fmt.Errorf("unexpected intention %T", intention)
	}
	if err := checkFormat(in.Kind, payload); err != nil {
		return nil, &streamable.DecodeError{Key: in.Key(), Err: err}
	}
	return wearable.NewRenderableAsset(in.Key(), in.Hash, in.Kind, payload), nil
}

func checkFormat(kind wearable.AssetKind, payload []byte) error {
	if len(payload) == 0 {
		return errors.New("empty payload")
	}
	switch kind {
	case wearable.AssetKindTexture:
		if !bytes.HasPrefix(payload, pngSignature) {
			return errors.New("texture is not a png")
		}
	case wearable.AssetKindModel:
		if !bytes.HasPrefix(payload, glbMagic) {
			return errors.New("model is not a binary gltf")
		}
	}
	return nil
}

func embeddedError(path string, err error) error {
	fetchErr := &streamable.FetchError{URL: "embedded:" + path, Err: err}
	if errors.Is(err, fs.ErrNotExist) {
		fetchErr.StatusCode = http.StatusNotFound
	}
	return fetchErr
}
