package invalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/spatial-entities/internal/core/observability"
)

// Publisher writes events to a Kafka topic, keyed by layer so one layer stays ordered.
type Publisher struct {
	topic  string
	source string
	prod   sarama.SyncProducer
	seq    atomic.Uint64
	now    func() time.Time
}

func NewPublisher(brokers []string, topic, source string) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true
	cfg.Producer.Retry.Max = 3

	prod, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalidation: create sync producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, source), nil
}

// NewPublisherWithProducer takes ownership of prod.
func NewPublisherWithProducer(prod sarama.SyncProducer, topic, source string) *Publisher {
	return newPublisher(prod, topic, source, time.Now)
}

// newPublisher starts the sequence at the current time in nanoseconds so a restarted process
// keeps counting above what consumers remember for the same source.
func newPublisher(prod sarama.SyncProducer, topic, source string, now func() time.Time) *Publisher {
	p := &Publisher{topic: topic, source: source, prod: prod, now: now}
	p.seq.Store(uint64(now().UnixNano()))
	return p
}

func (p *Publisher) Source() string { return p.source }

// Publish stamps version, source, sequence and time on ev, then sends it.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev.Version = Version
	ev.Source = p.source
	ev.Seq = p.seq.Add(1)
	if ev.TS.IsZero() {
		ev.TS = p.now().UTC()
	}
	if err := ev.Validate(); err != nil {
		observability.IncEvent("out", ev.Op, "invalid")
		return err
	}
	b, err := json.Marshal(ev)
	if err != nil {
		observability.IncEvent("out", ev.Op, "error")
		return fmt.Errorf("invalidation: marshal: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(ev.Layer),
		Value: sarama.ByteEncoder(b),
	}
	if _, _, err := p.prod.SendMessage(msg); err != nil {
		observability.IncEvent("out", ev.Op, "error")
		return fmt.Errorf("invalidation: send: %w", err)
	}
	observability.IncEvent("out", ev.Op, "ok")
	return nil
}

func (p *Publisher) Close() error {
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("invalidation: close producer: %w", err)
	}
	return nil
}
