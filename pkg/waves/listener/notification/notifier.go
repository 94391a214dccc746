// Package notification publishes job status changes.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/tigerroll/waves/pkg/waves/core/statemachine"
	"github.com/tigerroll/waves/pkg/waves/support/util/logger"
)

// StatusEvent is the published payload.
type StatusEvent struct {
	JobID     string    `json:"job_id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier delivers status events.
type Notifier interface {
	Notify(ctx context.Context, event StatusEvent) error
}

// LogNotifier only logs notifications.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	logger.Infof("Notification: Initializing log notifier.")
	return &LogNotifier{}
}

func (n *LogNotifier) Notify(_ context.Context, e StatusEvent) error {
	logger.Infof("Job Notification: job '%s' (%s) is now %s: %s", e.Title, e.Slug, e.To, e.Message)
	return nil
}

// Publisher is the part of *nats.Conn the NATS notifier needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NatsNotifier publishes events as JSON on <subject>.<slug>.status.
type NatsNotifier struct {
	pub     Publisher
	subject string
}

func NewNatsNotifier(pub Publisher, subject string) *NatsNotifier {
	return &NatsNotifier{pub: pub, subject: subject}
}

// Connect dials the NATS server, reconnecting forever.
func Connect(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("wavesd"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
	)
}

// Subject returns the subject events of slug are published on.
func (n *NatsNotifier) Subject(slug string) string {
	return fmt.Sprintf("%s.%s.status", n.subject, slug)
}

func (n *NatsNotifier) Notify(_ context.Context, e StatusEvent) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return n.pub.Publish(n.Subject(e.Slug), b)
}

// NotificationListener turns transitions into notifications. Delivery errors
// are logged and never fail the transition.
type NotificationListener struct {
	notifier Notifier
}

func NewNotificationListener(notifier Notifier) *NotificationListener {
	return &NotificationListener{notifier: notifier}
}

func (l *NotificationListener) OnTransition(ctx context.Context, e statemachine.TransitionEvent) {
	event := StatusEvent{
		JobID:     e.JobID,
		Slug:      e.Slug,
		Title:     e.Title,
		From:      e.From.String(),
		To:        e.To.String(),
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
	if err := l.notifier.Notify(ctx, event); err != nil {
		logger.Warnf("Notification: failed to notify status %s of job %s: %v", e.To, e.Slug, err)
	}
}

var _ statemachine.TransitionListener = (*NotificationListener)(nil)
