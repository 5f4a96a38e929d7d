package blobfx

import (
	"go.uber.org/fx"
)

var Module = fx.Options(
	fx.Provide(BlobStoreConfigProvider),
	fx.Provide(BlobStore),
)
