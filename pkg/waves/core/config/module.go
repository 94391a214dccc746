package config

import (
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
	"github.com/tigerroll/waves/pkg/waves/support/util/serialization"
)

// Apply pushes the process-wide settings of cfg into the logger and the
// parameter masking.
func Apply(cfg *Config) {
	logger.SetFormat(cfg.Waves.System.Logging.Format)
	logger.SetLogLevel(cfg.Waves.System.Logging.Level)
	if len(cfg.Waves.Security.MaskedParameterKeys) > 0 {
		serialization.SetMaskedParameterKeys(cfg.Waves.Security.MaskedParameterKeys)
	}
}

// NewLoggingConfigProvider extracts the logging section.
func NewLoggingConfigProvider(cfg *Config) *LoggingConfig {
	return &cfg.Waves.System.Logging
}

// NewEnabledAdaptorsProvider extracts the enabled adaptor kinds.
func NewEnabledAdaptorsProvider(cfg *Config) []string {
	return cfg.Waves.Adaptors.Enabled
}

// Module provides the configuration sections to fx. The *Config itself is
// supplied by the application.
var Module = fx.Options(
	fx.Provide(NewLoggingConfigProvider),
	fx.Provide(fx.Annotate(NewEnabledAdaptorsProvider, fx.ResultTags(`name:"enabledAdaptors"`))),
	fx.Invoke(Apply),
)
