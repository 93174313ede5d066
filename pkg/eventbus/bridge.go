package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill/message"
)

// Topic is the broker topic automation events travel on when bridged.
const Topic = "automaton.events"

// Metadata keys set on bridged messages.
const (
	EventTypeMetadataKey = "event_type"
	EventIDMetadataKey   = "event_id"
)

const bridgedMetadataKey = "bridged"

// Bridge connects the in-process bus to an external watermill channel:
// every bus event is republished to the broker, and inbound broker messages
// are injected onto the bus. This is how other processes observe or feed
// the automation engine without sharing its memory.
type Bridge struct {
	bus        *Bus
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     *slog.Logger
}

// NewBridge wires a bridge to the given bus and watermill channel. Either
// side may be nil to bridge one direction only.
func NewBridge(bus *Bus, publisher message.Publisher, subscriber message.Subscriber, logger *slog.Logger) *Bridge {
	return &Bridge{
		bus:        bus,
		publisher:  publisher,
		subscriber: subscriber,
		logger:     logger.With("module", "event_bridge"),
	}
}

// Start subscribes the outbound forwarder on the bus and, when a subscriber
// is configured, launches the inbound consumer loop.
func (b *Bridge) Start(ctx context.Context) error {
	if b.publisher != nil {
		b.bus.Subscribe("*", b.forward)
	}

	if b.subscriber == nil {
		return nil
	}

	messages, err := b.subscriber.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("failed to subscribe to bridge topic: %w", err)
	}

	go b.consume(messages)

	return nil
}

// Stop detaches the forwarder and closes the channel endpoints.
func (b *Bridge) Stop() error {
	b.bus.Unsubscribe("*", b.forward)

	if b.publisher != nil {
		if err := b.publisher.Close(); err != nil {
			return err
		}
	}

	if b.subscriber != nil {
		return b.subscriber.Close()
	}

	return nil
}

// forward republishes one bus event to the broker. Events that arrived via
// the bridge are not forwarded back, which would loop them forever.
func (b *Bridge) forward(_ context.Context, event AutomationEvent) error {
	if bridged, ok := event.Metadata[bridgedMetadataKey].(bool); ok && bridged {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event %s: %w", event.ID, err)
	}

	msg := message.NewMessage("msg-"+event.ID, payload)
	msg.Metadata.Set(EventTypeMetadataKey, event.Type)
	msg.Metadata.Set(EventIDMetadataKey, event.ID)

	return b.publisher.Publish(Topic, msg)
}

// consume injects inbound broker messages onto the bus. Messages that fail
// to decode are acked and dropped; a full bus queue nacks for redelivery.
func (b *Bridge) consume(messages <-chan *message.Message) {
	for msg := range messages {
		var event AutomationEvent

		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			b.logger.Warn("Discarding undecodable bridge message", "message_id", msg.UUID, "error", err)
			msg.Ack()

			continue
		}

		if event.Metadata == nil {
			event.Metadata = make(map[string]any)
		}

		event.Metadata[bridgedMetadataKey] = true

		if err := b.bus.Publish(event); err != nil {
			b.logger.Warn("Failed to publish bridged event", "event_id", event.ID, "error", err)
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}
