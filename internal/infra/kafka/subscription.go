package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/domain/event"
	"github.com/lloydmeta/reqindex/internal/domain/stream"
	"github.com/lloydmeta/reqindex/internal/domain/tenant"
	workerconfig "github.com/lloydmeta/reqindex/worker/config"
)

const defaultDialTimeout = 10 * time.Second

// reader is the part of *kafkago.Reader a Subscription uses
type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Subscription is a consumer group membership on a tenant's item topic
type Subscription struct {
	topic  string
	reader reader
}

// NewSubscriptions returns one Subscription per tenant, all in the consumer group derived from
// the module's name and version
func NewSubscriptions(conf config.App, tenants []tenant.Id) []stream.Subscription {
	groupId := event.ConsumerGroupId(event.InventoryItemUpdated, conf.Module.Name, conf.Module.Version)
	dialer := newDialer(conf.Kafka, conf.Worker.ID)
	subscriptions := make([]stream.Subscription, 0, len(tenants))
	for _, t := range tenants {
		topic := event.TopicName(conf.Environment, t)
		log.Info().Str("topic", topic).Str("group_id", groupId).Msg("Subscribing")
		r := kafkago.NewReader(readerConfig(conf.Kafka, dialer, groupId, topic))
		subscriptions = append(subscriptions, &Subscription{topic: topic, reader: r})
	}
	return subscriptions
}

func readerConfig(conf config.Kafka, dialer *kafkago.Dialer, groupId string, topic string) kafkago.ReaderConfig {
	startOffset := kafkago.FirstOffset
	if conf.StartOffset == "latest" {
		startOffset = kafkago.LastOffset
	}
	return kafkago.ReaderConfig{
		Brokers:     conf.Brokers,
		GroupID:     groupId,
		Topic:       topic,
		Dialer:      dialer,
		MinBytes:    conf.MinBytes,
		MaxBytes:    conf.MaxBytes,
		MaxWait:     conf.MaxWait,
		StartOffset: startOffset,
		// commits are explicit and synchronous
		CommitInterval: 0,
		Logger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			log.Debug().Str("topic", topic).Msgf(msg, args...)
		}),
		ErrorLogger: kafkago.LoggerFunc(func(msg string, args ...interface{}) {
			log.Error().Str("topic", topic).Msgf(msg, args...)
		}),
	}
}

func newDialer(conf config.Kafka, workerId workerconfig.WorkerId) *kafkago.Dialer {
	clientId := string(workerId)
	if len(clientId) == 0 {
		clientId = uuid.New().String()
	}
	timeout := conf.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	return &kafkago.Dialer{
		ClientID:  clientId,
		Timeout:   timeout,
		DualStack: true,
	}
}

func (s *Subscription) Topic() string {
	return s.topic
}

func (s *Subscription) Fetch(ctx context.Context) (stream.Message, error) {
	m, err := s.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stream.Message{}, stream.ErrClosed
		}
		return stream.Message{}, err
	}
	return toStreamMessage(m), nil
}

func (s *Subscription) Commit(ctx context.Context, msg stream.Message) error {
	return s.reader.CommitMessages(ctx, toKafkaMessage(msg))
}

func (s *Subscription) Close() error {
	return s.reader.Close()
}

func toStreamMessage(m kafkago.Message) stream.Message {
	headers := make(map[string]string, len(m.Headers))
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	return stream.Message{
		Topic:     m.Topic,
		Partition: stream.Partition(m.Partition),
		Offset:    stream.Offset(m.Offset),
		Key:       m.Key,
		Value:     m.Value,
		Headers:   headers,
	}
}

// Only the position matters when committing
func toKafkaMessage(m stream.Message) kafkago.Message {
	return kafkago.Message{
		Topic:     m.Topic,
		Partition: int(m.Partition),
		Offset:    int64(m.Offset),
	}
}
