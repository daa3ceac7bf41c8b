package repository

import (
	"context"
	"fmt"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	pkgkafka "Detector/pkg/kafka"
)

type kafkaProducer interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaEventPublisher writes detector events to one topic keyed by detector key,
// so every event of one detector lands on the same partition in order.
type KafkaEventPublisher struct {
	producer kafkaProducer
	topic    string
}

func NewKafkaEventPublisher(producer kafkaProducer, topic string) *KafkaEventPublisher {
	if topic == "" {
		topic = models.SubscriptionType
	}
	return &KafkaEventPublisher{producer: producer, topic: topic}
}

func (p *KafkaEventPublisher) Publish(ctx context.Context, msg models.SubscriptionValue) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(msg.Options.Key), msg); err != nil {
		return fmt.Errorf("kafka publish %s: %w", p.topic, err)
	}
	return nil
}

func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var (
	_ repository.EventPublisher = (*KafkaEventPublisher)(nil)
	_ kafkaProducer             = (*pkgkafka.Producer)(nil)
)
