package gcs

import (
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
)

// Module contributes the GCS StorageProvider.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`),
	)),
)
