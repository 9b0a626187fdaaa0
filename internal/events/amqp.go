package events

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

// compile-time check that *AMQPPublisher implements Publisher
var _ Publisher = (*AMQPPublisher)(nil)

// DefaultQueue is where lifecycle events land unless configured otherwise.
const DefaultQueue = "tapcard.lifecycle"

const (
	dialTimeout  = 2 * time.Second
	retryBackoff = 10 * time.Second
)

// ErrBrokerBackoff is returned while the publisher waits out a failed dial.
var ErrBrokerBackoff = errors.New("events: rabbitmq unavailable, retry pending")

// AMQPPublisher sends events to a durable RabbitMQ queue.
//
// The connection is opened lazily on first use and reopened after any
// failure, so a broker restart only loses the events published while it was
// down. Publish runs on the request path: a dial gives up after dialTimeout,
// and after a failed dial no new one is tried for retryBackoff.
type AMQPPublisher struct {
	url    string
	queue  string
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	conn      *amqp.Connection
	ch        *amqp.Channel
	nextRetry time.Time
}

func NewAMQPPublisher(url, queue string, logger *slog.Logger) *AMQPPublisher {
	if queue == "" {
		queue = DefaultQueue
	}
	return &AMQPPublisher{url: url, queue: queue, logger: logger, now: time.Now}
}

// Publish marshals e and publishes it as a persistent message.
func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("events: marshalling %s: %w", e.Type, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.ensureChannel(); err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx,
		"",      // default exchange
		p.queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Type:         string(e.Type),
			Timestamp:    e.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		p.reset()
		return fmt.Errorf("events: publishing %s: %w", e.Type, err)
	}
	return nil
}

// ensureChannel dials and declares the queue if there is no live channel.
// Caller holds p.mu.
func (p *AMQPPublisher) ensureChannel() error {
	if p.ch != nil && !p.ch.IsClosed() {
		return nil
	}
	p.reset()

	if p.now().Before(p.nextRetry) {
		return ErrBrokerBackoff
	}
	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Heartbeat: 10 * time.Second,
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		p.nextRetry = p.now().Add(retryBackoff)
		return fmt.Errorf("events: dialing rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("events: opening channel: %w", err)
	}
	if _, err := ch.QueueDeclare(
		p.queue,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("events: declaring queue %s: %w", p.queue, err)
	}

	p.conn, p.ch = conn, ch
	p.logger.Info("rabbitmq publisher connected", slog.String("queue", p.queue))
	return nil
}

// reset drops the current connection. Caller holds p.mu.
func (p *AMQPPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// Close releases the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reset()
	return nil
}
