package kafka

import (
	"context"
	"errors"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog/log"

	dom "github.com/bookingcontrol/booker-slot-svc/internal/domain/slot"
)

// GenerationUseCase is the slice of the schedule service the listener
// drives from inbound request events.
type GenerationUseCase interface {
	GenerateRange(ctx context.Context, roomID int64, dateFrom, dateTo string) error
	ReplaceClosedDates(ctx context.Context, roomID int64, rules []dom.ClosedDateRule) error
}

// Listener consumes all slot topics on one consumer group and routes
// each message by its eventType discriminator. Unknown event types are
// logged and dropped.
type Listener struct {
	group    sarama.ConsumerGroup
	topics   []string
	schedule GenerationUseCase
}

func NewListener(group sarama.ConsumerGroup, schedule GenerationUseCase) *Listener {
	return &Listener{
		group:    group,
		schedule: schedule,
		topics: []string{
			dom.TopicGenerationRequested,
			dom.TopicClosedDateRequested,
		},
	}
}

// Start runs the consume loop until ctx is cancelled. Consume returns
// on every rebalance, so it is called in a loop.
func (l *Listener) Start(ctx context.Context) {
	go func() {
		for {
			if err := l.group.Consume(ctx, l.topics, l); err != nil {
				log.Error().Err(err).Msg("Consumer group session failed")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
}

func (l *Listener) Close() error {
	return l.group.Close()
}

func (l *Listener) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (l *Listener) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (l *Listener) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		l.handle(session.Context(), msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (l *Listener) handle(ctx context.Context, msg *sarama.ConsumerMessage) {
	ev, err := dom.DecodeEnvelope(msg.Value)
	if err != nil {
		if errors.Is(err, dom.ErrUnknownEventType) {
			log.Warn().
				Str("topic", msg.Topic).
				Int32("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Err(err).
				Msg("Dropping message with unknown event type")
			return
		}
		log.Error().
			Str("topic", msg.Topic).
			Int64("offset", msg.Offset).
			Err(err).
			Msg("Failed to decode inbound event")
		return
	}

	switch e := ev.(type) {
	case dom.SlotGenerationRequested:
		if err := l.schedule.GenerateRange(ctx, e.RoomID, e.DateFrom, e.DateTo); err != nil {
			log.Error().
				Err(err).
				Str("request_id", e.RequestID).
				Int64("room_id", e.RoomID).
				Msg("Slot generation request failed")
			return
		}
		log.Info().
			Str("request_id", e.RequestID).
			Int64("room_id", e.RoomID).
			Str("date_from", e.DateFrom).
			Str("date_to", e.DateTo).
			Msg("Processed slot generation request")

	case dom.ClosedDateUpdateRequested:
		rules := make([]dom.ClosedDateRule, 0, len(e.ClosedDates))
		for _, d := range e.ClosedDates {
			rules = append(rules, dom.ClosedDateRule{RoomID: e.RoomID, DateFrom: d, DateTo: d})
		}
		if err := l.schedule.ReplaceClosedDates(ctx, e.RoomID, rules); err != nil {
			log.Error().
				Err(err).
				Str("request_id", e.RequestID).
				Int64("room_id", e.RoomID).
				Msg("Closed date update request failed")
			return
		}
		log.Info().
			Str("request_id", e.RequestID).
			Int64("room_id", e.RoomID).
			Int("closed_dates", len(e.ClosedDates)).
			Msg("Processed closed date update request")

	default:
		// Lifecycle events published by this service can show up here
		// when topics are shared; they have no inbound handler.
		log.Debug().
			Str("event_type", ev.EventType()).
			Str("topic", msg.Topic).
			Msg("No handler for event type")
	}
}
