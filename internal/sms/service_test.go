package sms

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nyotafm/smsgate/internal/domain"
	"github.com/nyotafm/smsgate/internal/events"
	"github.com/nyotafm/smsgate/internal/gateway"
	"github.com/nyotafm/smsgate/internal/store"
)

// mockSMSStore implements store.SMSStore for testing
type mockSMSStore struct {
	mu        sync.Mutex
	smses     map[string]*domain.SMS
	createErr error
	updateErr error
	findErr   error
}

func newMockSMSStore() *mockSMSStore {
	return &mockSMSStore{smses: make(map[string]*domain.SMS)}
}

func (s *mockSMSStore) Create(ctx context.Context, sms *domain.SMS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	clone := *sms
	s.smses[sms.ID] = &clone
	return nil
}

func (s *mockSMSStore) GetByID(ctx context.Context, id string) (*domain.SMS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sms, ok := s.smses[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *sms
	return &clone, nil
}

func (s *mockSMSStore) Update(ctx context.Context, sms *domain.SMS) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return s.updateErr
	}
	if _, ok := s.smses[sms.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *sms
	s.smses[sms.ID] = &clone
	return nil
}

func (s *mockSMSStore) Find(ctx context.Context, filter store.SMSFilter) ([]domain.SMS, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	var out []domain.SMS
	for _, sms := range s.smses {
		if filter.Sent != nil && sms.Sent() != *filter.Sent {
			continue
		}
		if filter.From != "" && sms.From != filter.From {
			continue
		}
		out = append(out, *sms)
	}
	return out, nil
}

// mockMessageStore implements store.MessageStore for testing
type mockMessageStore struct {
	mu        sync.Mutex
	messages  map[string]*domain.Message
	updateErr map[string]error // per message id
}

func newMockMessageStore() *mockMessageStore {
	return &mockMessageStore{
		messages:  make(map[string]*domain.Message),
		updateErr: make(map[string]error),
	}
}

func (s *mockMessageStore) CreateBatch(ctx context.Context, messages []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range messages {
		clone := messages[i]
		s.messages[clone.ID] = &clone
	}
	return nil
}

func (s *mockMessageStore) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *msg
	return &clone, nil
}

func (s *mockMessageStore) Update(ctx context.Context, msg *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErr[msg.ID]; err != nil {
		return err
	}
	if _, ok := s.messages[msg.ID]; !ok {
		return store.ErrNotFound
	}
	clone := *msg
	s.messages[msg.ID] = &clone
	return nil
}

func (s *mockMessageStore) FindBySMS(ctx context.Context, smsID string, needingDelivery bool) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Message
	for _, msg := range s.messages {
		if msg.SMSID != smsID {
			continue
		}
		if needingDelivery && !msg.NeedsDelivery() {
			continue
		}
		out = append(out, *msg)
	}
	return out, nil
}

// mockPublisher implements queue.Publisher for testing
type mockPublisher struct {
	mu        sync.Mutex
	published [][]byte
	err       error
}

func (p *mockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, data)
	return nil
}

func (p *mockPublisher) Close() error { return nil }

func (p *mockPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.published)
}

func newTestService(transport gateway.Transport) (*Service, *mockSMSStore, *mockMessageStore, *mockPublisher, *events.Hub) {
	smses := newMockSMSStore()
	messages := newMockMessageStore()
	publisher := &mockPublisher{}
	hub := events.NewHub()
	svc := NewService(smses, messages, transport, publisher, hub, Config{
		CallbackBaseURL:    "https://example.com",
		CallbackPath:       "/sms-deliveries",
		CallbackToken:      "cb_token",
		IntermediateReport: true,
	})
	return svc, smses, messages, publisher, hub
}

func draftSMS() *domain.SMS {
	return &domain.SMS{
		From: "TEST",
		To:   []string{"+255716000000", "+255685111111"},
		Text: "hi",
	}
}

func TestSendHappyPath(t *testing.T) {
	fake := &gateway.Fake{}
	svc, smses, messages, _, _ := newTestService(fake)

	sent, updated, err := svc.Send(context.Background(), draftSMS(), nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	if !sent.Sent() {
		t.Error("expected sentAt set after successful send")
	}
	if sent.Error != nil {
		t.Errorf("expected error unset, got %s", sent.Error)
	}

	if len(updated) != 2 {
		t.Fatalf("expected 2 reconciled messages, got %d", len(updated))
	}
	for _, msg := range updated {
		if msg.SMSID != sent.ID {
			t.Errorf("message %s references sms %s, want %s", msg.ID, msg.SMSID, sent.ID)
		}
		if msg.Status == nil {
			t.Errorf("message %s has no status after reconciliation", msg.ID)
		}
	}

	persisted, err := messages.FindBySMS(context.Background(), sent.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(persisted))
	}
	seen := map[string]bool{}
	for _, msg := range persisted {
		seen[msg.To] = true
		if msg.Destination == nil || msg.Destination.To == "" {
			t.Errorf("message %s has no resolved destination", msg.ID)
		}
	}
	if !seen["+255716000000"] || !seen["+255685111111"] {
		t.Errorf("fan-out recipients mismatch: %v", seen)
	}

	stored, err := smses.GetByID(context.Background(), sent.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Sent() {
		t.Error("sentAt mutation was not persisted")
	}

	if len(fake.Batches) != 1 {
		t.Fatalf("expected one gateway call, got %d", len(fake.Batches))
	}
	batch := fake.Batches[0]
	if batch.BulkID != sent.ID || batch.CallbackData != sent.ID {
		t.Errorf("batch correlation mismatch: bulkId=%s callbackData=%s smsId=%s", batch.BulkID, batch.CallbackData, sent.ID)
	}
	if len(batch.Destinations) != 2 {
		t.Errorf("expected 2 destinations, got %d", len(batch.Destinations))
	}
	if batch.NotifyURL == "" {
		t.Error("expected notify URL on batch")
	}
}

func TestSendValidation(t *testing.T) {
	svc, smses, messages, _, _ := newTestService(&gateway.Fake{})

	draft := draftSMS()
	draft.To = []string{"+255716000000"}

	_, _, err := svc.Send(context.Background(), draft, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	smses.mu.Lock()
	if len(smses.smses) != 0 {
		t.Error("invalid sms must not be persisted")
	}
	smses.mu.Unlock()
	messages.mu.Lock()
	if len(messages.messages) != 0 {
		t.Error("no message may be created for an invalid sms")
	}
	messages.mu.Unlock()
}

func TestSendBadAddressFailsFanOut(t *testing.T) {
	svc, _, messages, _, _ := newTestService(&gateway.Fake{})

	draft := draftSMS()
	draft.To = []string{"+255716000000", "not-a-number"}

	_, _, err := svc.Send(context.Background(), draft, nil)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	messages.mu.Lock()
	if len(messages.messages) != 0 {
		t.Error("fan-out must be all-or-nothing")
	}
	messages.mu.Unlock()
}

func TestSendTransportFailure(t *testing.T) {
	fake := &gateway.Fake{Err: &gateway.Error{StatusCode: 401, Message: "bad credentials"}}
	svc, smses, messages, _, _ := newTestService(fake)

	sent, updated, err := svc.Send(context.Background(), draftSMS(), nil)

	var gwErr *gateway.Error
	if !errors.As(err, &gwErr) {
		t.Fatalf("expected gateway error surfaced, got %v", err)
	}
	if len(updated) != 0 {
		t.Errorf("no message should be reconciled on transport failure, got %d", len(updated))
	}
	if sent.Sent() {
		t.Error("sentAt must stay unset on transport failure")
	}
	if sent.Error == nil {
		t.Error("transport failure must be recorded on the sms")
	}

	stored, _ := smses.GetByID(context.Background(), sent.ID)
	if stored.Error == nil {
		t.Error("recorded transport failure was not persisted")
	}

	pending, _ := messages.FindBySMS(context.Background(), sent.ID, true)
	if len(pending) != 2 {
		t.Errorf("all messages must stay pending for a future resend, got %d", len(pending))
	}
}

func TestSendPersistFailureWinsOverTransportFailure(t *testing.T) {
	fake := &gateway.Fake{Err: &gateway.Error{StatusCode: 500, Message: "gateway down"}}
	svc, smses, _, _, _ := newTestService(fake)

	smses.updateErr = errors.New("disk full")

	_, _, err := svc.Send(context.Background(), draftSMS(), nil)
	var pErr *PersistenceError
	if !errors.As(err, &pErr) {
		t.Fatalf("persistence failure must surface first, got %v", err)
	}
}

func TestDispatchShortCircuitsWhenNothingPending(t *testing.T) {
	fake := &gateway.Fake{}
	svc, _, _, _, _ := newTestService(fake)

	sent, _, err := svc.Send(context.Background(), draftSMS(), nil)
	if err != nil {
		t.Fatal(err)
	}
	calls := len(fake.Batches)

	// The fake marks every message delivered, so a second dispatch has
	// nothing to send.
	resent, _, err := svc.SendByID(context.Background(), sent.ID)
	if err != nil {
		t.Fatalf("SendByID: %v", err)
	}
	if len(fake.Batches) != calls {
		t.Error("expected no gateway call when no message needs delivery")
	}
	if !resent.Sent() {
		t.Error("sms must still be marked sent")
	}
}

func TestQueueDefersGatewayCall(t *testing.T) {
	fake := &gateway.Fake{}
	svc, _, messages, publisher, hub := newTestService(fake)

	sub := &events.Subscriber{ID: "t", Type: events.TypeQueued, Events: make(chan events.Event, 1)}
	hub.Subscribe(sub)

	queued, err := svc.Queue(context.Background(), draftSMS(), map[string]any{"validityPeriod": 720})
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}

	if len(fake.Batches) != 0 {
		t.Error("queue must not perform a gateway round trip")
	}
	if publisher.count() != 1 {
		t.Fatalf("expected one enqueued job, got %d", publisher.count())
	}

	select {
	case event := <-sub.Events:
		if event.SMSID != queued.ID {
			t.Errorf("queued event for %s, want %s", event.SMSID, queued.ID)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for queued event")
	}

	persisted, _ := messages.FindBySMS(context.Background(), queued.ID, false)
	if len(persisted) != 2 {
		t.Errorf("queue must fan out before enqueueing, got %d messages", len(persisted))
	}
}

func TestQueueErrorEvent(t *testing.T) {
	svc, _, _, publisher, hub := newTestService(&gateway.Fake{})
	publisher.err = errors.New("broker down")

	sub := &events.Subscriber{ID: "t", Type: events.TypeQueueError, Events: make(chan events.Event, 1)}
	hub.Subscribe(sub)

	_, err := svc.Queue(context.Background(), draftSMS(), nil)
	if err == nil {
		t.Fatal("expected enqueue failure to surface")
	}

	select {
	case event := <-sub.Events:
		if event.Error == "" {
			t.Error("queue-error event must carry the failure")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for queue-error event")
	}
}

func TestResendTargetsOnlyUnsent(t *testing.T) {
	fake := &gateway.Fake{}
	svc, _, _, _, _ := newTestService(fake)

	// One delivered SMS, one that failed at the transport.
	if _, _, err := svc.Send(context.Background(), draftSMS(), nil); err != nil {
		t.Fatal(err)
	}

	fake.Err = &gateway.Error{StatusCode: 500, Message: "flaky"}
	failed, _, err := svc.Send(context.Background(), draftSMS(), nil)
	if err == nil {
		t.Fatal("expected transport failure")
	}
	fake.Err = nil

	callsBefore := len(fake.Batches)
	results, err := svc.Resend(context.Background(), store.SMSFilter{})
	if err != nil {
		t.Fatalf("Resend: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("resend must target only unsent sms, got %d results", len(results))
	}
	if results[0].SMS.ID != failed.ID {
		t.Errorf("resend targeted %s, want %s", results[0].SMS.ID, failed.ID)
	}
	if results[0].Err != nil {
		t.Errorf("resend attempt failed: %v", results[0].Err)
	}
	if !results[0].SMS.Sent() {
		t.Error("resent sms must be marked sent")
	}
	if len(fake.Batches) != callsBefore+1 {
		t.Errorf("expected exactly one additional gateway call, got %d", len(fake.Batches)-callsBefore)
	}
}

func TestRequeueEmitsPerSMS(t *testing.T) {
	fake := &gateway.Fake{Err: &gateway.Error{StatusCode: 500, Message: "down"}}
	svc, _, _, publisher, hub := newTestService(fake)

	for i := 0; i < 2; i++ {
		if _, _, err := svc.Send(context.Background(), draftSMS(), nil); err == nil {
			t.Fatal("expected transport failure")
		}
	}

	sub := &events.Subscriber{ID: "t", Type: events.TypeQueued, Events: make(chan events.Event, 4)}
	hub.Subscribe(sub)

	queuedBefore := publisher.count()
	requeued, err := svc.Requeue(context.Background(), store.SMSFilter{})
	if err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	if len(requeued) != 2 {
		t.Fatalf("expected 2 requeued sms, got %d", len(requeued))
	}
	if publisher.count() != queuedBefore+2 {
		t.Errorf("expected 2 enqueued jobs, got %d", publisher.count()-queuedBefore)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-sub.Events:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for queued event %d", i)
		}
	}
}

func TestUpdateStatusesSkipsUnmatched(t *testing.T) {
	svc, _, messages, _, _ := newTestService(&gateway.Fake{})

	msg := domain.Message{ID: "msg-1", SMSID: "sms-1", To: "+255716000000", Text: "hi"}
	if err := messages.CreateBatch(context.Background(), []domain.Message{msg}); err != nil {
		t.Fatal(err)
	}

	records := []domain.StatusRecord{
		{ID: "msg-1", Count: 1, Status: &domain.Status{EID: 5, Group: domain.Group{EID: 3, Name: "DELIVERED"}}},
		{ID: "ghost", Count: 1},
	}

	updated, err := svc.UpdateStatuses(context.Background(), records)
	if err != nil {
		t.Fatalf("unmatched record must not error: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != "msg-1" {
		t.Fatalf("expected only msg-1 updated, got %+v", updated)
	}
	if updated[0].Status == nil || updated[0].Status.Group.Name != "DELIVERED" {
		t.Errorf("status not applied: %+v", updated[0].Status)
	}
}

func TestUpdateStatusesPartialFailure(t *testing.T) {
	svc, _, messages, _, _ := newTestService(&gateway.Fake{})

	batch := []domain.Message{
		{ID: "msg-1", SMSID: "sms-1", To: "+255716000000", Text: "hi"},
		{ID: "msg-2", SMSID: "sms-1", To: "+255685111111", Text: "hi"},
	}
	if err := messages.CreateBatch(context.Background(), batch); err != nil {
		t.Fatal(err)
	}
	messages.updateErr["msg-2"] = errors.New("conflict")

	records := []domain.StatusRecord{
		{ID: "msg-1", Count: 1},
		{ID: "msg-2", Count: 1},
	}

	updated, err := svc.UpdateStatuses(context.Background(), records)
	var rErr *ReconciliationError
	if !errors.As(err, &rErr) {
		t.Fatalf("expected ReconciliationError, got %v", err)
	}
	if rErr.Failed != 1 {
		t.Errorf("expected 1 failure, got %d", rErr.Failed)
	}
	if len(updated) != 1 || updated[0].ID != "msg-1" {
		t.Errorf("one update must survive the other's failure, got %+v", updated)
	}
}

func TestUpdateStatusesClearsResolvedError(t *testing.T) {
	svc, _, messages, _, _ := newTestService(&gateway.Fake{})

	msg := domain.Message{
		ID: "msg-1", SMSID: "sms-1", To: "+255716000000", Text: "hi",
		Error: &domain.Status{EID: 7, Group: domain.Group{EID: 2}},
	}
	if err := messages.CreateBatch(context.Background(), []domain.Message{msg}); err != nil {
		t.Fatal(err)
	}

	now := time.Now()
	records := []domain.StatusRecord{{
		ID:     "msg-1",
		DoneAt: &now,
		Error:  &domain.Status{EID: 0, Name: "NO_ERROR", Group: domain.Group{EID: 0, Name: "OK"}},
	}}

	updated, err := svc.UpdateStatuses(context.Background(), records)
	if err != nil {
		t.Fatal(err)
	}
	if updated[0].Error != nil {
		t.Error("NO_ERROR report must clear a previous error")
	}
	if updated[0].NeedsDelivery() {
		t.Error("delivered message must not stay retry-eligible")
	}
}
