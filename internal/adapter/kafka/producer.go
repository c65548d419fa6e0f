package kafka

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
	"github.com/bookingcontrol/booker-slot-svc/internal/infrastructure/kafka"
)

// Producer publishes outbox entries to Kafka. The aggregate id is the
// partition key, so every event of one reservation (or one room) lands
// on the same partition in order.
type Producer struct {
	producer *kafka.Producer
}

func NewProducer(infraProducer *kafka.Producer) *Producer {
	return &Producer{producer: infraProducer}
}

func (p *Producer) Publish(ctx context.Context, entry *dom.OutboxEntry) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("publish %s: %w", entry.ID, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: entry.Topic,
		Key:   sarama.StringEncoder(entry.AggregateID),
		Value: sarama.ByteEncoder(entry.Payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(entry.EventType)},
			{Key: []byte("aggregate_type"), Value: []byte(entry.AggregateType)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	log.Info().
		Str("topic", entry.Topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Str("event_type", entry.EventType).
		Str("aggregate_id", entry.AggregateID).
		Msg("Published slot event")

	return nil
}
