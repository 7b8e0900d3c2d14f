package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"
)

// Topics published by the pricing layer. Consumers subscribe instead of the
// storefront's former DOM custom events.
const (
	TopicCurrencyChanged = "pricing.currency_changed"
	TopicPricingReady    = "pricing.ready"
)

var errBusClosed = errors.New("events: bus is closed")

// Bus is the in-process publish/subscribe channel connecting the pricing
// services to decoupled consumers such as price displays.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus constructs an in-memory bus backed by watermill's gochannel transport.
func NewBus(logger *zap.Logger) *Bus {
	ps := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		newZapAdapter(logger),
	)
	return &Bus{pubsub: ps}
}

// Publish marshals the payload as JSON and delivers it to all current
// subscribers of the topic.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) error {
	if b == nil || b.pubsub == nil {
		return errBusClosed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("events: marshal %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.SetContext(ctx)
	return b.pubsub.Publish(topic, msg)
}

// Subscribe returns a channel of raw messages for the topic. The subscription
// ends when ctx is cancelled or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if b == nil || b.pubsub == nil {
		return nil, errBusClosed
	}
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the underlying pub/sub down, terminating all subscriptions.
func (b *Bus) Close() error {
	if b == nil || b.pubsub == nil {
		return nil
	}
	return b.pubsub.Close()
}

// Decode unmarshals a message payload into the provided target and acks the
// message, so subscriber loops stay one-liners.
func Decode(msg *message.Message, target any) error {
	if msg == nil {
		return errors.New("events: nil message")
	}
	defer msg.Ack()
	if err := json.Unmarshal(msg.Payload, target); err != nil {
		return fmt.Errorf("events: decode payload: %w", err)
	}
	return nil
}

type zapAdapter struct {
	logger *zap.Logger
}

func newZapAdapter(logger *zap.Logger) watermill.LoggerAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return zapAdapter{logger: logger}
}

func (a zapAdapter) Error(msg string, err error, fields watermill.LogFields) {
	a.logger.Error(msg, append(zapFields(fields), zap.Error(err))...)
}

func (a zapAdapter) Info(msg string, fields watermill.LogFields) {
	a.logger.Info(msg, zapFields(fields)...)
}

func (a zapAdapter) Debug(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

func (a zapAdapter) Trace(msg string, fields watermill.LogFields) {
	a.logger.Debug(msg, zapFields(fields)...)
}

func (a zapAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return zapAdapter{logger: a.logger.With(zapFields(fields)...)}
}

func zapFields(fields watermill.LogFields) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}
