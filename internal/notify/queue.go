package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const envelopeTypeEmail = "email"

type envelope struct {
	Type    string `json:"type"`
	Payload Email  `json:"payload"`
}

func encodeEmail(e Email) ([]byte, error) {
	return json.Marshal(envelope{Type: envelopeTypeEmail, Payload: e})
}

func decodeEmail(body []byte) (Email, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Email{}, fmt.Errorf("unmarshal: %w", err)
	}
	if env.Type != envelopeTypeEmail {
		return Email{}, fmt.Errorf("unexpected message type %q", env.Type)
	}
	if env.Payload.To == "" {
		return Email{}, errors.New("missing recipient")
	}
	return env.Payload, nil
}

// Queue publishes email jobs to a durable RabbitMQ queue. The connection is
// opened lazily and re-dialed after a failure.
type Queue struct {
	url   string
	queue string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewQueue(url, queue string) *Queue {
	return &Queue{url: url, queue: queue}
}

func (q *Queue) channel() (*amqp.Channel, error) {
	if q.ch != nil && !q.ch.IsClosed() {
		return q.ch, nil
	}
	q.closeLocked()

	conn, err := amqp.DialConfig(q.url, amqp.Config{Dial: amqp.DefaultDial(3 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	q.conn, q.ch = conn, ch

	return ch, nil
}

func (q *Queue) Send(ctx context.Context, e Email) error {
	const op = "notify.Queue.Send"

	body, err := encodeEmail(e)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ch, err := q.channel()
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	if err := ch.PublishWithContext(ctx, "", q.queue, false, false, pub); err != nil {
		q.closeLocked()
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closeLocked()
	return nil
}

func (q *Queue) closeLocked() {
	if q.ch != nil {
		_ = q.ch.Close()
		q.ch = nil
	}
	if q.conn != nil {
		_ = q.conn.Close()
		q.conn = nil
	}
}

// Consume delivers queued email through sender until ctx is cancelled,
// reconnecting to the broker with capped exponential backoff.
func Consume(ctx context.Context, url, queue string, sender Sender, logger *slog.Logger) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			logger.Warn("mail consumer: dial failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, 30*time.Second)
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, sender, logger)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("mail consumer: loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, sender Sender, logger *slog.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(20, 0, false); err != nil {
		logger.Warn("mail consumer: set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := deliver(ctx, d.Body, sender); err != nil {
				logger.Error("mail consumer: delivery failed", "error", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func deliver(ctx context.Context, body []byte, sender Sender) error {
	e, err := decodeEmail(body)
	if err != nil {
		return err
	}
	return sender.Send(ctx, e)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
