package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// AMQPPublisher mirrors events onto a RabbitMQ topic exchange using the
// routing key "<domain>.<event>".
type AMQPPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	logger   *slog.Logger

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

// NewAMQPPublisher dials url and declares a durable topic exchange.
func NewAMQPPublisher(url, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, logger: logger}, nil
}

// RoutingKey is the key an event is published under.
func RoutingKey(evt Event) string {
	return evt.Domain + "." + evt.Name
}

// Publish implements Publisher. Failures are logged and dropped.
func (p *AMQPPublisher) Publish(evt Event) {
	body, err := json.Marshal(evt)
	if err != nil {
		p.logger.Error("amqp: marshal event", "event", evt.Name, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	p.mu.Lock()
	err = p.ch.PublishWithContext(ctx,
		p.exchange,      // exchange
		RoutingKey(evt), // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    evt.At,
			DeliveryMode: amqp.Persistent,
		},
	)
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("amqp: publish failed", "routing_key", RoutingKey(evt), "err", err)
		return
	}
	p.logger.Debug("amqp: published", "routing_key", RoutingKey(evt))
}

// Close releases the channel and connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ch.Close(); err != nil {
		p.conn.Close()
		return err
	}
	return p.conn.Close()
}
