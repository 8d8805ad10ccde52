// Package event provides the pub/sub bus that carries canonical events from
// the session registry to transports, built on watermill's gochannel.
package event

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog"

	"github.com/agentdeck-ai/agentdeck/internal/logging"
)

const topic = "agentdeck.events"

// Event is one envelope on the bus. Properties is an arbitrary payload when
// publishing; subscribers receive it re-decoded as json.RawMessage.
type Event struct {
	Type       Type   `json:"type"`
	SessionID  string `json:"sessionID,omitempty"`
	Properties any    `json:"properties,omitempty"`
}

// Bus is a process-local pub/sub bus. It is constructed once by the entry
// point and passed to collaborators; there is deliberately no package-level
// instance.
type Bus struct {
	pubsub *gochannel.GoChannel
	log    zerolog.Logger
}

// NewBus creates a bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 256},
			watermill.NopLogger{},
		),
		log: logging.For("event"),
	}
}

// Publish sends an event to all current subscribers. Publishing to a closed
// bus is a no-op.
func (b *Bus) Publish(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("type", string(ev.Type)).Msg("drop unserializable event")
		return
	}
	if err := b.pubsub.Publish(topic, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		b.log.Debug().Err(err).Msg("publish after close")
	}
}

// Subscribe returns a channel of events that closes when ctx is cancelled or
// the bus closes. Slow subscribers buffer up to the channel size and then
// exert backpressure on publishers.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, error) {
	msgs, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for msg := range msgs {
			var ev Event
			if err := json.Unmarshal(msg.Payload, &ev); err != nil {
				msg.Ack()
				continue
			}
			// Re-decode Properties as raw JSON for the consumer.
			var raw struct {
				Properties json.RawMessage `json:"properties"`
			}
			_ = json.Unmarshal(msg.Payload, &raw)
			ev.Properties = raw.Properties
			msg.Ack()

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}
