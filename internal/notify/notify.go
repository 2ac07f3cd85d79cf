// README: Notification worker: bounded queue in front of the push sink.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/oxymore-tech/liane-sub002/internal/observability"
	"github.com/oxymore-tech/liane-sub002/internal/types"
)

type Notification struct {
	Recipient types.ID
	Title     string
	Body      string
	Payload   map[string]string
}

// Sink delivers one notification to one recipient.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// LogSink is the fallback when no push backend is configured: notifications
// land in the log instead of on a device.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Send(_ context.Context, n Notification) error {
	s.Logger.Info("notification", "recipient", n.Recipient, "title", n.Title, "body", n.Body)
	return nil
}

// Worker decouples event dispatch from push delivery. Enqueue never blocks:
// when the queue is full the notification is dropped and counted, which is
// the right trade for best-effort push.
type Worker struct {
	sink        Sink
	queue       chan Notification
	sendTimeout time.Duration
	logger      *slog.Logger
}

func NewWorker(sink Sink, size int, sendTimeout time.Duration, logger *slog.Logger) *Worker {
	if size <= 0 {
		size = 256
	}
	if sendTimeout <= 0 {
		sendTimeout = 3 * time.Second
	}
	return &Worker{sink: sink, queue: make(chan Notification, size), sendTimeout: sendTimeout, logger: logger}
}

func (w *Worker) Enqueue(n Notification) {
	select {
	case w.queue <- n:
	default:
		observability.NotificationsDropped.Inc()
		w.logger.Warn("notification queue full, dropping", "recipient", n.Recipient, "title", n.Title)
	}
}

// Run drains the queue until the context is canceled. Delivery failures are
// logged and do not stop the worker.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-w.queue:
			sctx, cancel := context.WithTimeout(ctx, w.sendTimeout)
			err := w.sink.Send(sctx, n)
			cancel()
			if err != nil {
				w.logger.Warn("notification delivery failed", "recipient", n.Recipient, "error", err)
				continue
			}
			observability.NotificationsSent.Inc()
		}
	}
}
