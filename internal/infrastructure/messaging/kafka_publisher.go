// Package messaging publishes domain events to a Kafka-compatible broker.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go-clinic-appointment/internal/domain/entity"
	"go-clinic-appointment/internal/infrastructure/metrics"

	"github.com/sirupsen/logrus"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher produces events asynchronously. Delivery failures are logged
// and counted; the originating operation has already committed.
type KafkaPublisher struct {
	client  *kgo.Client
	topic   string
	log     *logrus.Logger
	metrics *metrics.Metrics
}

func NewKafkaPublisher(brokers []string, topic string, log *logrus.Logger, m *metrics.Metrics) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(20*time.Millisecond),
		kgo.RecordRetries(3),
		kgo.ProducerBatchCompression(kgo.Lz4Compression()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &KafkaPublisher{client: client, topic: topic, log: log, metrics: m}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, event entity.DomainEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}

	// The produce outlives the request that triggered it
	p.client.Produce(context.WithoutCancel(ctx), record, func(r *kgo.Record, err error) {
		if err != nil {
			p.log.Warnf("Failed to publish event %s for %s: %+v", event.Type, event.Key, err)
			p.count(event.Type, "error")
			return
		}
		p.count(event.Type, "ok")
	})
	return nil
}

// Close flushes buffered records and closes the client
func (p *KafkaPublisher) Close(ctx context.Context) error {
	err := p.client.Flush(ctx)
	p.client.Close()
	return err
}

func (p *KafkaPublisher) count(eventType, outcome string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(eventType, outcome).Inc()
	}
}

// LogPublisher is used when no broker is configured; events go to the log only.
type LogPublisher struct {
	log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, event entity.DomainEvent) error {
	p.log.WithFields(logrus.Fields{
		"event_type": event.Type,
		"key":        event.Key,
	}).Debug("Domain event")
	return nil
}

func (p *LogPublisher) Close(context.Context) error {
	return nil
}
