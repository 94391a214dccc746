package notification

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/waves/pkg/waves/core/config"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// NewNotifier picks the NATS notifier when notification.nats_url is set and
// the log notifier otherwise. The NATS connection is drained on stop.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config) (Notifier, error) {
	n := cfg.Waves.Notification
	if n.NatsURL == "" {
		return NewLogNotifier(), nil
	}
	nc, err := Connect(n.NatsURL)
	if err != nil {
		return nil, err
	}
	logger.Infof("Notification: publishing status changes to %s on '%s.*'", n.NatsURL, n.Subject)
	lc.Append(fx.Hook{OnStop: func(context.Context) error { return nc.Drain() }})
	return NewNatsNotifier(nc, n.Subject), nil
}

var Module = fx.Options(
	fx.Provide(NewNotifier),
	fx.Provide(NewNotificationListener),
)
