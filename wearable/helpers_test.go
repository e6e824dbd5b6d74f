package wearable_test

import (
	"ocm.software/open-component-model/streaming/streamable"
	"ocm.software/open-component-model/streaming/wearable"
)

func successAsset(a *wearable.RenderableAsset) streamable.Result[*wearable.RenderableAsset] {
	return streamable.Success(a)
}
