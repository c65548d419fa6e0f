package slot

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Topics, one per event kind.
const (
	TopicReserved            = "slot.reserved"
	TopicConfirmed           = "slot.confirmed"
	TopicCancelled           = "slot.cancelled"
	TopicRestored            = "slot.restored"
	TopicGenerationRequested = "slot.generation.requested"
	TopicClosedDateRequested = "slot.closed-dates.requested"
)

const (
	AggregateReservation = "Reservation"
	AggregateRoom        = "Room"
)

// Event is the closed set of domain events this service produces or
// consumes. AggregateID doubles as the partition key: reservation id
// for reservation-scoped events, room id for generation-scoped ones.
type Event interface {
	EventType() string
	Topic() string
	AggregateType() string
	AggregateID() string
}

type SlotReserved struct {
	RoomID        int64    `json:"roomId"`
	SlotDate      string   `json:"slotDate"`
	StartTimes    []string `json:"startTimes"`
	ReservationID string   `json:"reservationId"`
}

func (SlotReserved) EventType() string     { return "SlotReserved" }
func (SlotReserved) Topic() string         { return TopicReserved }
func (SlotReserved) AggregateType() string { return AggregateReservation }
func (e SlotReserved) AggregateID() string { return e.ReservationID }

type SlotConfirmed struct {
	ReservationID string `json:"reservationId"`
}

func (SlotConfirmed) EventType() string     { return "SlotConfirmed" }
func (SlotConfirmed) Topic() string         { return TopicConfirmed }
func (SlotConfirmed) AggregateType() string { return AggregateReservation }
func (e SlotConfirmed) AggregateID() string { return e.ReservationID }

type SlotCancelled struct {
	ReservationID string `json:"reservationId"`
	CancelReason  string `json:"cancelReason"`
}

func (SlotCancelled) EventType() string     { return "SlotCancelled" }
func (SlotCancelled) Topic() string         { return TopicCancelled }
func (SlotCancelled) AggregateType() string { return AggregateReservation }
func (e SlotCancelled) AggregateID() string { return e.ReservationID }

type SlotRestored struct {
	ReservationID string `json:"reservationId"`
}

func (SlotRestored) EventType() string     { return "SlotRestored" }
func (SlotRestored) Topic() string         { return TopicRestored }
func (SlotRestored) AggregateType() string { return AggregateReservation }
func (e SlotRestored) AggregateID() string { return e.ReservationID }

type SlotGenerationRequested struct {
	RequestID string `json:"requestId"`
	RoomID    int64  `json:"roomId"`
	DateFrom  string `json:"dateFrom"`
	DateTo    string `json:"dateTo"`
}

func (SlotGenerationRequested) EventType() string     { return "SlotGenerationRequested" }
func (SlotGenerationRequested) Topic() string         { return TopicGenerationRequested }
func (SlotGenerationRequested) AggregateType() string { return AggregateRoom }
func (e SlotGenerationRequested) AggregateID() string {
	return strconv.FormatInt(e.RoomID, 10)
}

type ClosedDateUpdateRequested struct {
	RequestID   string   `json:"requestId"`
	RoomID      int64    `json:"roomId"`
	ClosedDates []string `json:"closedDates"`
}

func (ClosedDateUpdateRequested) EventType() string     { return "ClosedDateUpdateRequested" }
func (ClosedDateUpdateRequested) Topic() string         { return TopicClosedDateRequested }
func (ClosedDateUpdateRequested) AggregateType() string { return AggregateRoom }
func (e ClosedDateUpdateRequested) AggregateID() string {
	return strconv.FormatInt(e.RoomID, 10)
}

// MarshalEnvelope flattens the event fields together with the common
// envelope keys (eventType, topic, occurredAt) into one JSON object.
func MarshalEnvelope(ev Event, occurredAt time.Time) ([]byte, error) {
	body, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("marshal event %s: %w", ev.EventType(), err)
	}

	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("flatten event %s: %w", ev.EventType(), err)
	}

	fields["eventType"] = ev.EventType()
	fields["topic"] = ev.Topic()
	fields["occurredAt"] = occurredAt.UTC().Format(time.RFC3339)

	return json.Marshal(fields)
}

// DecodeEnvelope reads the eventType discriminator and unmarshals into
// the matching variant. Unknown types yield ErrUnknownEventType.
func DecodeEnvelope(data []byte) (Event, error) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var (
		ev  Event
		err error
	)
	switch head.EventType {
	case "SlotReserved":
		var e SlotReserved
		err = json.Unmarshal(data, &e)
		ev = e
	case "SlotConfirmed":
		var e SlotConfirmed
		err = json.Unmarshal(data, &e)
		ev = e
	case "SlotCancelled":
		var e SlotCancelled
		err = json.Unmarshal(data, &e)
		ev = e
	case "SlotRestored":
		var e SlotRestored
		err = json.Unmarshal(data, &e)
		ev = e
	case "SlotGenerationRequested":
		var e SlotGenerationRequested
		err = json.Unmarshal(data, &e)
		ev = e
	case "ClosedDateUpdateRequested":
		var e ClosedDateUpdateRequested
		err = json.Unmarshal(data, &e)
		ev = e
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, head.EventType)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", head.EventType, err)
	}
	return ev, nil
}

// EventPublisher abstracts pushing an outbox entry to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, entry *OutboxEntry) error
}
