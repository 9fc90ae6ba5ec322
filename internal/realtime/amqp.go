package realtime

import (
	"context"
	"fmt"

	"github.com/dpup/prefab/logging"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

// AMQPBackplane fans events out through a RabbitMQ fanout exchange. Each
// instance binds its own exclusive, auto-deleted queue.
type AMQPBackplane struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
	queue    string
}

// DialAMQPBackplane connects to RabbitMQ and declares the exchange and queue
func DialAMQPBackplane(cfg config.AMQPBus) (*AMQPBackplane, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq connect: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(cfg.Exchange, "fanout", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(q.Name, "", cfg.Exchange, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	b := newAMQPBackplane(ch, cfg.Exchange, q.Name)
	b.conn = conn
	return b, nil
}

func newAMQPBackplane(ch amqpChannel, exchange, queue string) *AMQPBackplane {
	return &AMQPBackplane{ch: ch, exchange: exchange, queue: queue}
}

// Publish sends payload to the fanout exchange
func (b *AMQPBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.ch.PublishWithContext(ctx, b.exchange, "", false, false, amqp.Publishing{
		ContentType: "application/json",
		Body:        payload,
	})
}

// Subscribe delivers queue messages to handler
func (b *AMQPBackplane) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	msgs, err := b.ch.Consume(b.queue, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				handler(msg.Body)
			}
		}
	}()

	logging.Infow(ctx, "Consuming alert exchange", "exchange", b.exchange, "queue", b.queue)
	return nil
}

// Close closes the channel and connection
func (b *AMQPBackplane) Close() error {
	err := b.ch.Close()
	if b.conn != nil {
		if cerr := b.conn.Close(); cerr != nil {
			return cerr
		}
	}
	return err
}
