package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"

	"github.com/grandmasters-wiki/internal/config"
)

// Producer publishes cache invalidation events
type Producer struct {
	producer sarama.SyncProducer
	topic    string
	now      func() time.Time
	logger   *slog.Logger
}

// NewSaramaConfig returns the producer configuration used for invalidations
func NewSaramaConfig(cfg *config.KafkaConfig) *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	if cfg.RetryAttempts > 0 {
		saramaConfig.Producer.Retry.Max = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		saramaConfig.Producer.Retry.Backoff = cfg.RetryDelay
	}
	return saramaConfig
}

// NewProducer connects a synchronous producer to the configured brokers
func NewProducer(cfg *config.KafkaConfig, logger *slog.Logger) (*Producer, error) {
	producer, err := sarama.NewSyncProducer(cfg.Brokers, NewSaramaConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("creating producer: %w", err)
	}
	return NewProducerFrom(producer, cfg.Topic, logger), nil
}

// NewProducerFrom wraps an existing sarama producer
func NewProducerFrom(producer sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{
		producer: producer,
		topic:    topic,
		now:      time.Now,
		logger:   logger,
	}
}

// PublishInvalidation publishes one invalidation event for username
func (p *Producer) PublishInvalidation(ctx context.Context, username, reason string) error {
	return p.PublishInvalidations(ctx, []string{username}, reason)
}

// PublishInvalidations publishes one event per username in a single request
func (p *Producer) PublishInvalidations(ctx context.Context, usernames []string, reason string) error {
	if len(usernames) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	ts := p.now().Unix()
	msgs := make([]*sarama.ProducerMessage, 0, len(usernames))
	for _, username := range usernames {
		data, err := json.Marshal(InvalidationEvent{Username: username, Reason: reason, Timestamp: ts})
		if err != nil {
			return fmt.Errorf("marshaling event: %w", err)
		}
		msgs = append(msgs, &sarama.ProducerMessage{
			Topic: p.topic,
			Key:   sarama.StringEncoder(username),
			Value: sarama.ByteEncoder(data),
		})
	}

	if err := p.producer.SendMessages(msgs); err != nil {
		return fmt.Errorf("publishing %d invalidations: %w", len(msgs), err)
	}

	p.logger.Debug("published invalidations", "count", len(msgs), "reason", reason)
	return nil
}

// Close closes the underlying producer
func (p *Producer) Close() error {
	return p.producer.Close()
}
