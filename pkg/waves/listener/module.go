// Package listener attaches the transition listeners to the state machine.
package listener

import (
	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/core/job/workdir"
	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/listener/joblog"
	"github.com/tigerroll/waves/pkg/waves/listener/logging"
	"github.com/tigerroll/waves/pkg/waves/listener/metrics"
	"github.com/tigerroll/waves/pkg/waves/listener/notification"
)

type listeners struct {
	fx.In
	Machine      *statemachine.Machine
	Workdir      *workdir.Manager
	Cfg          *config.Config
	Metrics      *metrics.AsyncTransitionRecorder
	Notification *notification.NotificationListener
}

// Register adds every listener to the machine.
func Register(p listeners) {
	p.Machine.AddListener(logging.NewLoggingTransitionListener())
	p.Machine.AddListener(joblog.NewJobLogListener(p.Workdir, p.Cfg.Waves.Jobs.LogLevel))
	p.Machine.AddListener(p.Metrics)
	p.Machine.AddListener(p.Notification)
}

// Module aggregates all listener modules.
var Module = fx.Options(
	metrics.Module,
	notification.Module,
	fx.Invoke(Register),
)
