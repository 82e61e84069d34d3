// Package kafka publishes applied-operation events for downstream consumers
// (weekly ranking jobs, audit dashboards). Publishing is best-effort: the
// ledger never fails an update because an event could not be written.
package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/pastelaria/aluminio-bot/internal/interfaces"
)

const writeTimeout = 5 * time.Second

// Keyed events choose their own partition key, keeping all updates for one
// member ordered within the stream.
type Keyed interface {
	EventKey() string
}

// Publisher writes JSON-encoded events to Kafka. The topic is chosen per
// Publish call rather than fixed at construction, so one writer serves every
// event stream the ledger emits.
type Publisher struct {
	writer *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
		},
	}
}

func buildMessage(topic string, event any) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	msg := kafka.Message{Topic: topic, Value: data}
	if k, ok := event.(Keyed); ok {
		msg.Key = []byte(k.EventKey())
	}
	return msg, nil
}

func (p *Publisher) Publish(topic string, event any) error {
	msg, err := buildMessage(topic, event)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}

var _ interfaces.EventPublisher = (*Publisher)(nil)
