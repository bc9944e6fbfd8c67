package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/nyotafm/smsgate/internal/queue"
)

// Publisher persists deferred send jobs to a JetStream stream so queued SMS
// survive process restarts.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
}

func New(ctx context.Context, url string) (*Publisher, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     queue.StreamName,
		Subjects: []string{queue.StreamSubjects},
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create stream: %w", err)
	}

	return &Publisher{
		conn:   conn,
		js:     js,
		stream: stream,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, subject string, data []byte) error {
	_, err := p.js.Publish(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("publish job: %w", err)
	}
	return nil
}

// Consumer creates (or resumes) the durable consumer the deferred send
// worker fetches jobs from. maxDeliver bounds redelivery of failing jobs,
// ackWait how long one send attempt may hold a job.
func (p *Publisher) Consumer(ctx context.Context, name string, maxDeliver int, ackWait time.Duration) (jetstream.Consumer, error) {
	cons, err := p.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       name,
		FilterSubject: queue.SubjectQueued,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    maxDeliver,
		AckWait:       ackWait,
	})
	if err != nil {
		return nil, fmt.Errorf("create consumer: %w", err)
	}
	return cons, nil
}

func (p *Publisher) Close() error {
	p.conn.Close()
	return nil
}
