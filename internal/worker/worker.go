// Package worker runs deferred SMS sends: it consumes queued jobs and drives
// the orchestrator's send path for each.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/events"
	"github.com/nyotafm/smsgate/internal/logging"
	"github.com/nyotafm/smsgate/internal/queue"
	"github.com/nyotafm/smsgate/internal/retry"
	"github.com/nyotafm/smsgate/internal/store"
)

// Sender is the slice of the orchestrator the worker drives.
type Sender interface {
	SendByID(ctx context.Context, id string) (*domain.SMS, []domain.Message, error)
}

type Worker struct {
	sender     Sender
	consumer   jetstream.Consumer
	hub        *events.Hub
	backoff    *retry.Backoff
	batchSize  int
	jobTimeout time.Duration
}

func New(sender Sender, consumer jetstream.Consumer, hub *events.Hub, batchSize int, jobTimeout time.Duration) *Worker {
	return &Worker{
		sender:     sender,
		consumer:   consumer,
		hub:        hub,
		backoff:    retry.DefaultBackoff(),
		batchSize:  batchSize,
		jobTimeout: jobTimeout,
	}
}

// Start fetches and processes queued send jobs until the context is
// canceled. Fetch batch size bounds how many sends are in flight at once.
func (w *Worker) Start(ctx context.Context) error {
	slog.Info("deferred send worker started",
		slog.Int("batch_size", w.batchSize),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("deferred send worker shutting down")
			return ctx.Err()
		default:
			msgs, err := w.consumer.Fetch(w.batchSize, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				slog.Error("error fetching jobs", slog.Any("error", err))
				continue
			}

			for msg := range msgs.Messages() {
				w.processMessage(ctx, msg)
			}
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, msg jetstream.Msg) {
	var job queue.Job
	if err := json.Unmarshal(msg.Data(), &job); err != nil {
		slog.Error("failed to unmarshal job, dropping", slog.Any("error", err))
		msg.Ack()
		return
	}

	ctx = logging.WithJobID(logging.WithSMSID(ctx, job.SMSID), msg.Subject())
	log := logging.FromContext(ctx)

	jobCtx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	_, updated, err := w.sender.SendByID(jobCtx, job.SMSID)
	if err == nil {
		log.Info("deferred send complete", slog.Int("messages", len(updated)))
		w.publish(events.TypeJobComplete, job.SMSID, nil)
		msg.Ack()
		return
	}

	if errors.Is(err, store.ErrNotFound) {
		log.Warn("queued sms no longer exists, dropping job")
		msg.Ack()
		return
	}

	attempt := deliveryAttempt(msg)
	delay := w.backoff.NextDelay(attempt)
	log.Error("deferred send failed",
		slog.Any("error", err),
		slog.Int("attempt", attempt),
		slog.Duration("redelivery_delay", delay),
	)
	w.publish(events.TypeJobError, job.SMSID, err)

	// The consumer's MaxDeliver bounds total attempts; after that the
	// SMS stays unsent and a resend/requeue sweep picks it up.
	if nakErr := msg.NakWithDelay(delay); nakErr != nil {
		log.Error("failed to nak job", slog.Any("error", nakErr))
	}
}

func (w *Worker) publish(eventType events.Type, smsID string, err error) {
	if w.hub == nil {
		return
	}
	event := events.Event{Type: eventType, SMSID: smsID, Timestamp: time.Now()}
	if err != nil {
		event.Error = err.Error()
	}
	w.hub.Publish(event)
}

func deliveryAttempt(msg jetstream.Msg) int {
	meta, err := msg.Metadata()
	if err != nil {
		return 0
	}
	return int(meta.NumDelivered) - 1
}
