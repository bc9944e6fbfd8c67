// Package sms orchestrates the send pipeline: persist an SMS, fan it out
// into per-recipient messages, submit a gateway batch, and reconcile gateway
// results back onto the messages.
package sms

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nyotafm/smsgate/internal/destination"
	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/events"
	"github.com/nyotafm/smsgate/internal/gateway"
	"github.com/nyotafm/smsgate/internal/logging"
	"github.com/nyotafm/smsgate/internal/queue"
	"github.com/nyotafm/smsgate/internal/store"
)

// Config carries the send defaults merged into every gateway batch.
type Config struct {
	// CallbackBaseURL + CallbackPath form the notify URL the gateway posts
	// delivery reports to. Empty CallbackBaseURL disables delivery reports.
	CallbackBaseURL string
	CallbackPath    string
	// CallbackToken authenticates the gateway's delivery report posts.
	CallbackToken      string
	IntermediateReport bool
}

// Service is the SMS orchestrator. All collaborators are injected; the
// service holds no global state.
type Service struct {
	smses     store.SMSStore
	messages  store.MessageStore
	transport gateway.Transport
	publisher queue.Publisher
	hub       *events.Hub
	cfg       Config
}

func NewService(
	smses store.SMSStore,
	messages store.MessageStore,
	transport gateway.Transport,
	publisher queue.Publisher,
	hub *events.Hub,
	cfg Config,
) *Service {
	return &Service{
		smses:     smses,
		messages:  messages,
		transport: transport,
		publisher: publisher,
		hub:       hub,
		cfg:       cfg,
	}
}

// SendResult is one SMS outcome of a bulk resend, positionally aggregated.
type SendResult struct {
	SMS      *domain.SMS
	Messages []domain.Message
	Err      error
}

// Send persists the draft, fans it out and performs the gateway round trip
// inline. The returned error never swallows partial results: a transport
// failure still returns the persisted SMS carrying the gateway error.
func (s *Service) Send(ctx context.Context, draft *domain.SMS, opts map[string]any) (*domain.SMS, []domain.Message, error) {
	sms, _, err := s.create(ctx, draft, opts)
	if err != nil {
		return sms, nil, err
	}
	updated, err := s.dispatch(ctx, sms)
	return sms, updated, err
}

// SendByID performs the gateway round trip for an already-persisted SMS.
// This is the deferred worker's entry point. Returns store.ErrNotFound when
// no SMS exists under id.
func (s *Service) SendByID(ctx context.Context, id string) (*domain.SMS, []domain.Message, error) {
	sms, err := s.smses.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, err
		}
		return nil, nil, &PersistenceError{Op: "get sms", Err: err}
	}
	updated, err := s.dispatch(ctx, sms)
	return sms, updated, err
}

// Queue persists the draft and its messages, then defers the gateway round
// trip to the background worker. It returns once the job is enqueued; no
// network I/O to the gateway happens inline. Emits a queued event, or a
// queue-error event on failure.
func (s *Service) Queue(ctx context.Context, draft *domain.SMS, opts map[string]any) (*domain.SMS, error) {
	sms, _, err := s.create(ctx, draft, opts)
	if err != nil {
		s.publishQueueError(sms, err)
		return sms, err
	}
	if err := s.enqueue(ctx, sms.ID); err != nil {
		s.publishQueueError(sms, err)
		return sms, err
	}
	s.hub.Publish(events.Event{Type: events.TypeQueued, SMSID: sms.ID, Timestamp: time.Now()})
	return sms, nil
}

// Resend dispatches every unsent SMS matching criteria, concurrently and
// independently. Results are aggregated positionally; the first error is
// returned alongside them.
func (s *Service) Resend(ctx context.Context, criteria store.SMSFilter) ([]SendResult, error) {
	unsent, err := s.Unsent(ctx, criteria)
	if err != nil {
		return nil, err
	}

	results := make([]SendResult, len(unsent))
	var wg sync.WaitGroup
	for i := range unsent {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sms := unsent[i]
			updated, err := s.dispatch(ctx, &sms)
			results[i] = SendResult{SMS: &sms, Messages: updated, Err: err}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			return results, r.Err
		}
	}
	return results, nil
}

// Requeue enqueues every unsent SMS matching criteria for deferred send,
// emitting one queued event per SMS.
func (s *Service) Requeue(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error) {
	unsent, err := s.Unsent(ctx, criteria)
	if err != nil {
		s.publishQueueError(nil, err)
		return nil, err
	}

	for i := range unsent {
		if err := s.enqueue(ctx, unsent[i].ID); err != nil {
			s.publishQueueError(&unsent[i], err)
			return unsent, err
		}
		s.hub.Publish(events.Event{Type: events.TypeQueued, SMSID: unsent[i].ID, Timestamp: time.Now()})
	}
	return unsent, nil
}

// Unsent finds SMS not yet accepted by the gateway. The sentAt predicate is
// always applied; caller criteria cannot override it.
func (s *Service) Unsent(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error) {
	sent := false
	criteria.Sent = &sent
	smses, err := s.smses.Find(ctx, criteria)
	if err != nil {
		return nil, &PersistenceError{Op: "find unsent sms", Err: err}
	}
	return smses, nil
}

// Sent finds SMS the gateway has accepted.
func (s *Service) Sent(ctx context.Context, criteria store.SMSFilter) ([]domain.SMS, error) {
	sent := true
	criteria.Sent = &sent
	smses, err := s.smses.Find(ctx, criteria)
	if err != nil {
		return nil, &PersistenceError{Op: "find sent sms", Err: err}
	}
	return smses, nil
}

// UpdateStatuses applies canonical status records onto their messages by
// identity, concurrently and independently: one failing update does not
// block the others. Records matching no known message are logged and
// skipped. Returns the successfully updated messages; a ReconciliationError
// reports any failures alongside them.
func (s *Service) UpdateStatuses(ctx context.Context, records []domain.StatusRecord) ([]domain.Message, error) {
	if len(records) == 0 {
		return nil, nil
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		updated []domain.Message
		failed  int
		first   error
	)
	for _, rec := range records {
		wg.Add(1)
		go func(rec domain.StatusRecord) {
			defer wg.Done()
			log := logging.FromContext(logging.WithMessageID(ctx, rec.ID))

			msg, err := s.messages.GetByID(ctx, rec.ID)
			if errors.Is(err, store.ErrNotFound) {
				log.Warn("status record matches no known message, skipping")
				return
			}

			if err == nil {
				applyRecord(msg, rec)
				err = s.messages.Update(ctx, msg)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				if first == nil {
					first = err
				}
				log.Error("failed to update message status", slog.Any("error", err))
				return
			}
			updated = append(updated, *msg)
		}(rec)
	}
	wg.Wait()

	if first != nil {
		return updated, &ReconciliationError{Updated: len(updated), Failed: failed, Err: first}
	}
	return updated, nil
}

// create validates and persists the SMS, then fans it out: one message per
// recipient, destinations resolved, persisted in one batch.
func (s *Service) create(ctx context.Context, draft *domain.SMS, opts map[string]any) (*domain.SMS, []domain.Message, error) {
	sms := *draft
	sms.Options = mergeOptions(draft.Options, opts)

	if err := sms.Validate(); err != nil {
		return nil, nil, &ValidationError{Err: err}
	}

	sms.ID = uuid.New().String()
	sms.CreatedAt = time.Now()
	if err := s.smses.Create(ctx, &sms); err != nil {
		return nil, nil, &PersistenceError{Op: "create sms", Err: err}
	}

	messages, err := prepare(&sms)
	if err != nil {
		return &sms, nil, err
	}
	if err := s.messages.CreateBatch(ctx, messages); err != nil {
		return &sms, nil, &PersistenceError{Op: "create messages", Err: err}
	}
	return &sms, messages, nil
}

// dispatch performs one gateway round trip for a persisted SMS and
// reconciles the outcome. Persisting the SMS mutation takes priority over a
// transport error when both fail.
func (s *Service) dispatch(ctx context.Context, sms *domain.SMS) ([]domain.Message, error) {
	ctx = logging.WithSMSID(ctx, sms.ID)
	log := logging.FromContext(ctx)

	pending, err := s.messages.FindBySMS(ctx, sms.ID, true)
	if err != nil {
		return nil, &PersistenceError{Op: "find pending messages", Err: err}
	}

	if len(pending) == 0 {
		// Everything already delivered; skip the gateway round trip.
		now := time.Now()
		sms.SentAt = &now
		sms.Error = nil
		if err := s.smses.Update(ctx, sms); err != nil {
			return nil, &PersistenceError{Op: "update sms", Err: err}
		}
		log.Info("no messages need delivery, marked sent without gateway call")
		return nil, nil
	}

	raw, sendErr := s.transport.SendBatch(ctx, s.buildBatch(sms, pending))

	var records []domain.StatusRecord
	if sendErr != nil {
		sms.Error = marshalSendError(sendErr)
		log.Error("gateway batch send failed", slog.Any("error", sendErr))
	} else {
		records = gateway.Normalize(raw)
		now := time.Now()
		sms.SentAt = &now
		sms.Error = nil
		log.Info("gateway accepted batch", slog.Int("destinations", len(pending)), slog.Int("results", len(records)))
	}

	if err := s.smses.Update(ctx, sms); err != nil {
		return nil, &PersistenceError{Op: "update sms", Err: err}
	}

	updated, reconcileErr := s.UpdateStatuses(ctx, records)
	if sendErr != nil {
		return updated, sendErr
	}
	return updated, reconcileErr
}

// buildBatch projects the pending messages of one SMS into a single gateway
// request. The SMS id doubles as bulk id and client correlation value.
func (s *Service) buildBatch(sms *domain.SMS, pending []domain.Message) gateway.Batch {
	destinations := make([]gateway.BatchDestination, 0, len(pending))
	for _, m := range pending {
		to := m.To
		if m.Destination != nil {
			to = m.Destination.To
		}
		destinations = append(destinations, gateway.BatchDestination{MessageID: m.ID, To: to})
	}

	batch := gateway.Batch{
		BulkID:             sms.ID,
		From:               sms.From,
		Text:               sms.Text,
		IntermediateReport: s.cfg.IntermediateReport,
		CallbackData:       sms.ID,
		Options:            sms.Options,
		Destinations:       destinations,
	}
	if s.cfg.CallbackBaseURL != "" {
		params := url.Values{}
		if s.cfg.CallbackToken != "" {
			params.Set("token", s.cfg.CallbackToken)
		}
		params.Set("source", sms.ID)
		batch.NotifyURL = s.cfg.CallbackBaseURL + s.cfg.CallbackPath + "?" + params.Encode()
		batch.NotifyContentType = "application/json"
	}
	return batch
}

func (s *Service) enqueue(ctx context.Context, smsID string) error {
	data, err := queue.Job{SMSID: smsID}.Marshal()
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, queue.SubjectQueued, data)
}

func (s *Service) publishQueueError(sms *domain.SMS, err error) {
	event := events.Event{Type: events.TypeQueueError, Error: err.Error(), Timestamp: time.Now()}
	if sms != nil {
		event.SMSID = sms.ID
	}
	s.hub.Publish(event)
}

// prepare fans one SMS out into draft messages, one per recipient. Blank
// entries are dropped; an unresolvable address fails the whole fan-out
// before any message is persisted.
func prepare(sms *domain.SMS) ([]domain.Message, error) {
	messages := make([]domain.Message, 0, len(sms.To))
	for _, to := range sms.To {
		if strings.TrimSpace(to) == "" {
			continue
		}
		dest, err := destination.Resolve(to)
		if err != nil {
			return nil, &ValidationError{Err: err}
		}
		messages = append(messages, domain.Message{
			ID:          uuid.New().String(),
			SMSID:       sms.ID,
			To:          to,
			Destination: dest,
			Text:        sms.Text,
			CreatedAt:   time.Now(),
		})
	}
	return messages, nil
}

// applyRecord copies the fields a status record carries onto the message.
// Absent fields leave the message untouched. A NO_ERROR block clears a
// previous error so the message stops being retry-eligible.
func applyRecord(msg *domain.Message, rec domain.StatusRecord) {
	if rec.Count != 0 {
		msg.Count = rec.Count
	}
	if rec.SentAt != nil {
		msg.SentAt = rec.SentAt
	}
	if rec.DoneAt != nil {
		msg.DoneAt = rec.DoneAt
	}
	if rec.Price != nil {
		msg.Price = rec.Price
	}
	if rec.Status != nil {
		msg.Status = rec.Status
	}
	if rec.Error != nil {
		if rec.Error.EID == 0 && rec.Error.Group.EID == 0 {
			msg.Error = nil
		} else {
			msg.Error = rec.Error
		}
	}
}

func mergeOptions(base, opts map[string]any) map[string]any {
	if len(base) == 0 && len(opts) == 0 {
		return nil
	}
	merged := make(map[string]any, len(base)+len(opts))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range opts {
		merged[k] = v
	}
	return merged
}

func marshalSendError(err error) json.RawMessage {
	var gwErr *gateway.Error
	if errors.As(err, &gwErr) {
		if data, mErr := json.Marshal(gwErr); mErr == nil {
			return data
		}
	}
	data, _ := json.Marshal(map[string]string{"message": err.Error()})
	return data
}
