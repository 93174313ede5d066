package cmd

import (
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/forgeops/automaton/pkg/channels/gochannel"
	"github.com/forgeops/automaton/pkg/channels/kafka"
)

// NewBridgeChannel creates the pub/sub pair the event bridge mirrors bus
// traffic onto.
func NewBridgeChannel(provider string, logger *slog.Logger) (message.Publisher, message.Subscriber, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	switch provider {
	case "kafka":
		return kafka.CreateChannel(wmLogger, "automaton")
	case "gochannel", "":
		return gochannel.CreateChannel(wmLogger)
	default:
		return nil, nil, fmt.Errorf("unsupported bridge provider: %s", provider)
	}
}
