package main

import (
	"context"
	_ "embed"
	"os"
	"os/signal"
	"syscall"

	"github.com/tigerroll/waves/internal/cmd"
	"github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := cmd.Execute(ctx, config.EmbeddedConfig(embeddedConfig))
	_ = logger.Sync()
	if err != nil {
		logger.Errorf("wavesd: %v", err)
		stop()
		os.Exit(1)
	}
}
