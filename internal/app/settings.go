package app

import (
	"fmt"
	"os"
	"time"

	config "github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/core/job/retry"
	"github.com/tigerroll/waves/pkg/waves/core/job/runner"
	"github.com/tigerroll/waves/pkg/waves/core/job/scheduler"
	"github.com/tigerroll/waves/pkg/waves/infrastructure/export"
)

// RetrySettings maps the jobs section onto the retry policy parameters.
func RetrySettings(cfg *config.Config) retry.Settings {
	j := cfg.Waves.Jobs
	return retry.Settings{
		MaxRetry:        j.MaxRetry,
		InitialInterval: time.Duration(j.InitialIntervalSeconds) * time.Second,
		MaxInterval:     time.Duration(j.MaxIntervalSeconds) * time.Second,
		Factor:          j.Factor,
		RetryableErrors: j.RetryableErrors,
	}
}

// Definitions maps the runners section onto the runner execution targets.
func Definitions(cfg *config.Config) map[string]runner.Definition {
	defs := make(map[string]runner.Definition, len(cfg.Waves.Runners))
	for name, r := range cfg.Waves.Runners {
		defs[name] = runner.Definition{Adaptor: r.Adaptor, Params: r.Params}
	}
	return defs
}

// SchedulerSettings maps the scheduler section; zero values take the
// scheduler defaults.
func SchedulerSettings(cfg *config.Config) scheduler.Settings {
	s := cfg.Waves.Scheduler
	return scheduler.Settings{
		PollingInterval: s.PollingInterval(),
		Workers:         s.Workers,
		BatchSize:       s.BatchSize,
	}
}

// ExportSettings maps the export section.
func ExportSettings(cfg *config.Config) export.Settings {
	e := cfg.Waves.Export
	return export.Settings{
		StorageRef:  e.StorageRef,
		Bucket:      e.Bucket,
		Prefix:      e.Prefix,
		Compression: e.Compression,
		Limit:       e.Limit,
	}
}

// LeaseOwner names this process in job leases.
func LeaseOwner() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "wavesd"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
