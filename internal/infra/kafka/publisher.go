package kafka

import (
	"context"
	"sort"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/lloydmeta/reqindex/internal/config"
	"github.com/lloydmeta/reqindex/internal/domain/event"
)

// writer is the part of *kafkago.Writer a Publisher uses
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher sends Notifications to the item topic of their tenant
type Publisher struct {
	environment string
	writer      writer
}

func NewPublisher(conf config.App) *Publisher {
	return &Publisher{
		environment: conf.Environment,
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(conf.Kafka.Brokers...),
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireAll,
		},
	}
}

// Publish writes the Notification keyed by its item id, so that every notification about one
// item lands on the same partition
func (p *Publisher) Publish(ctx context.Context, n *event.Notification) (string, error) {
	msg, err := p.toMessage(n)
	if err != nil {
		return "", err
	}
	return msg.Topic, p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

func (p *Publisher) toMessage(n *event.Notification) (kafkago.Message, error) {
	body, err := event.Encode(n)
	if err != nil {
		return kafkago.Message{}, err
	}
	headers := n.Headers()
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kafkaHeaders := make([]kafkago.Header, 0, len(headers))
	for _, k := range keys {
		kafkaHeaders = append(kafkaHeaders, kafkago.Header{Key: k, Value: []byte(headers[k])})
	}
	return kafkago.Message{
		Topic:   event.TopicName(p.environment, n.Tenant),
		Key:     []byte(n.ItemId()),
		Value:   body,
		Headers: kafkaHeaders,
	}, nil
}
