package eventbus_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeops/automaton/pkg/channels/gochannel"
	"github.com/forgeops/automaton/pkg/eventbus"
)

func TestBridgeForwardsBusEventsToChannel(t *testing.T) {
	t.Parallel()

	logger := slog.Default()
	bus := startedBus(t, eventbus.Config{})

	publisher, subscriber, err := gochannel.CreateTestChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	// Outbound only; we consume the raw channel ourselves.
	bridge := eventbus.NewBridge(bus, publisher, nil, logger)

	messages, err := subscriber.Subscribe(t.Context(), eventbus.Topic)
	require.NoError(t, err)

	require.NoError(t, bridge.Start(t.Context()))

	event := eventbus.NewEvent("workflow.completed", map[string]any{"workflow_id": "wf-1"})
	require.NoError(t, bus.Publish(event))

	select {
	case msg := <-messages:
		msg.Ack()

		assert.Equal(t, "workflow.completed", msg.Metadata.Get(eventbus.EventTypeMetadataKey))
		assert.Equal(t, event.ID, msg.Metadata.Get(eventbus.EventIDMetadataKey))

		var decoded eventbus.AutomationEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &decoded))
		assert.Equal(t, event.ID, decoded.ID)
		assert.Equal(t, "wf-1", decoded.Payload["workflow_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("bridged message never arrived on the channel")
	}
}

func TestBridgeInjectsChannelMessagesOntoBus(t *testing.T) {
	t.Parallel()

	logger := slog.Default()
	bus := startedBus(t, eventbus.Config{})

	publisher, subscriber, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	require.NoError(t, err)

	var received atomic.Int32

	var gotBridgedFlag atomic.Bool

	bus.Subscribe("external.ping", func(_ context.Context, event eventbus.AutomationEvent) error {
		received.Add(1)

		if bridged, ok := event.Metadata["bridged"].(bool); ok && bridged {
			gotBridgedFlag.Store(true)
		}

		return nil
	})

	// Inbound only; events come from the channel, none leave the bus.
	bridge := eventbus.NewBridge(bus, nil, subscriber, logger)
	require.NoError(t, bridge.Start(t.Context()))

	inbound := eventbus.NewEvent("external.ping", map[string]any{"n": 1})
	payload, err := json.Marshal(inbound)
	require.NoError(t, err)

	require.NoError(t, publisher.Publish(eventbus.Topic, message.NewMessage(watermill.NewUUID(), payload)))

	assert.Eventually(t, func() bool { return received.Load() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, gotBridgedFlag.Load(), "injected events are marked bridged to prevent loops")
}
