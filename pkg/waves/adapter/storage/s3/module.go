package s3

import (
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/adapter/storage"
)

// Module contributes the S3 StorageProvider.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewProvider,
		fx.ResultTags(`group:"`+storage.StorageProviderGroup+`"`),
	)),
)
