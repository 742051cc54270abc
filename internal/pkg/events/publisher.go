package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/Gopher0727/Guildhall/internal/pkg/kafka"
	"github.com/Gopher0727/Guildhall/internal/pkg/redis"
)

// ChannelPrefix prefixes every Redis pub/sub channel used for events.
const ChannelPrefix = "events:"

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// RedisPublisher fans events out over Redis pub/sub, one channel per topic.
type RedisPublisher struct {
	client redis.RedisClient
}

func NewRedisPublisher(client redis.RedisClient) *RedisPublisher {
	return &RedisPublisher{client: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, e Event) error {
	raw, err := Marshal(e)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, ChannelPrefix+e.Topic, raw)
}

type recordProducer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// KafkaPublisher appends events to the event topic keyed by gateway topic.
type KafkaPublisher struct {
	producer recordProducer
}

func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	raw, err := Marshal(e)
	if err != nil {
		return err
	}
	return p.producer.Produce(ctx, []byte(e.Topic), raw)
}

// Multi publishes to every publisher and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", e.Type, err))
		}
	}
	return errors.Join(errs...)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
