// Package events publishes order lifecycle facts to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
)

type Type string

const (
	OrderRequested Type = "order.requested"
	OrderMatched   Type = "order.matched"
	OrderRejected  Type = "order.rejected"
	OrderPaid      Type = "order.paid"
	OrderShipped   Type = "order.shipped"
	ListingCreated Type = "listing.created"
)

type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	OrderID   int64     `json:"order_id,omitempty"`
	ListingID int64     `json:"listing_id,omitempty"`
	ActorID   int64     `json:"actor_id"`
	At        time.Time `json:"at"`
}

// Publisher is what services depend on.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Producer struct {
	producer sarama.SyncProducer
	topic    string
	mockMode bool
	logger   *slog.Logger
}

// NewProducer connects to brokers. With no brokers it runs in mock mode and
// only logs what it would have sent.
func NewProducer(brokers []string, topicPrefix string, logger *slog.Logger) (*Producer, error) {
	const op = "events.NewProducer"

	topic := topicPrefix + ".orders"

	if len(brokers) == 0 {
		logger.Info("kafka producer in mock mode", "topic", topic)
		return &Producer{topic: topic, mockMode: true, logger: logger}, nil
	}

	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true

	sp, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	logger.Info("kafka producer connected", "brokers", brokers, "topic", topic)

	return NewWithSyncProducer(sp, topic, logger), nil
}

func NewWithSyncProducer(sp sarama.SyncProducer, topic string, logger *slog.Logger) *Producer {
	return &Producer{producer: sp, topic: topic, logger: logger}
}

func (p *Producer) Publish(ctx context.Context, e Event) error {
	const op = "events.Producer.Publish"

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	key := e.ID
	if e.OrderID != 0 {
		key = strconv.FormatInt(e.OrderID, 10)
	}

	if p.mockMode {
		p.logger.Debug("kafka mock publish", "topic", p.topic, "key", key, "type", e.Type, "data", string(data))
		return nil
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
		Headers: []sarama.RecordHeader{
			{Key: []byte("type"), Value: []byte(e.Type)},
		},
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	p.logger.Debug("kafka published", "topic", p.topic, "type", e.Type, "partition", partition, "offset", offset)

	return nil
}

func (p *Producer) Close() error {
	if p.mockMode || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}
