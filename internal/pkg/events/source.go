package events

import (
	"context"
	"strings"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Gopher0727/Guildhall/config"
	"github.com/Gopher0727/Guildhall/internal/pkg/kafka"
	"github.com/Gopher0727/Guildhall/internal/pkg/redis"
)

// Source delivers events to deliver until ctx is done.
type Source interface {
	Run(ctx context.Context, deliver func(Event)) error
}

type RedisSource struct {
	client redis.RedisClient
	logger *zap.Logger
}

func NewRedisSource(client redis.RedisClient, logger *zap.Logger) *RedisSource {
	return &RedisSource{client: client, logger: logger}
}

func (s *RedisSource) Run(ctx context.Context, deliver func(Event)) error {
	sub, err := s.client.PSubscribe(ctx, ChannelPrefix+"*")
	if err != nil {
		return err
	}
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			e, err := Unmarshal([]byte(msg.Payload))
			if err != nil {
				s.logger.Warn("discarding event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if !strings.HasSuffix(msg.Channel, e.Topic) {
				s.logger.Warn("event topic does not match channel", zap.String("channel", msg.Channel), zap.String("topic", e.Topic))
				continue
			}
			deliver(e)
		}
	}
}

// KafkaSource consumes the event topic in a consumer group of its own, so
// each gateway node receives the full stream.
type KafkaSource struct {
	cfg     *config.KafkaConfig
	groupID string
	logger  *zap.Logger
}

func NewKafkaSource(cfg *config.KafkaConfig, nodeID string, logger *zap.Logger) *KafkaSource {
	return &KafkaSource{cfg: cfg, groupID: cfg.ConsumerGroup + "-" + nodeID, logger: logger}
}

func (s *KafkaSource) Run(ctx context.Context, deliver func(Event)) error {
	handler := func(_ context.Context, m *sarama.ConsumerMessage) error {
		e, err := Unmarshal(m.Value)
		if err != nil {
			return err
		}
		deliver(e)
		return nil
	}
	consumer, err := kafka.NewConsumer(s.cfg, s.groupID, handler, s.logger)
	if err != nil {
		return err
	}
	if err := consumer.Start(ctx); err != nil {
		_ = consumer.Stop()
		return err
	}
	<-ctx.Done()
	return consumer.Stop()
}
