package rabbit

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/wb-go/wbf/zlog"
)

type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
}

type Config struct {
	URL      string
	Exchange string
	Queue    string
}

// Handler processes one delivery. A returned error requeues the message.
type Handler func(ctx context.Context, body []byte) error

func NewRabbit(cfg Config) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to connect to RabbitMQ")
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		zlog.Logger.Error().Err(err).Msg("failed to open RabbitMQ channel")
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
	}

	if err := client.declare(); err != nil {
		client.Close()
		return nil, err
	}

	zlog.Logger.Info().Msgf("RabbitMQ initialized (exchange=%s, queue=%s)", cfg.Exchange, cfg.Queue)
	return client, nil
}

func (c *Client) declare() error {
	if err := c.channel.ExchangeDeclare(
		c.exchange,
		amqp.ExchangeDirect,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare exchange")
		return fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := c.channel.QueueDeclare(
		c.queue,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to declare queue")
		return fmt.Errorf("declare queue: %w", err)
	}

	if err := c.channel.QueueBind(
		c.queue,
		c.queue,
		c.exchange,
		false,
		nil,
	); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to bind queue")
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) Close() {
	if c.channel != nil {
		_ = c.channel.Close()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
	zlog.Logger.Info().Msg("RabbitMQ connection closed")
}

// Publish sends a persistent JSON message to the notification queue.
func (c *Client) Publish(ctx context.Context, message []byte) error {
	err := c.channel.PublishWithContext(
		ctx,
		c.exchange,
		c.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to publish message to RabbitMQ")
		return fmt.Errorf("publish: %w", err)
	}
	zlog.Logger.Debug().Msgf("Message published to exchange=%s queue=%s", c.exchange, c.queue)
	return nil
}

// Consume delivers messages to handler until ctx is done or the channel closes.
// It blocks.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	msgs, err := c.channel.Consume(
		c.queue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to start consuming messages")
		return fmt.Errorf("consume: %w", err)
	}

	zlog.Logger.Info().Msgf("Started consuming from queue %s", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("consume: delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				zlog.Logger.Warn().Msgf("failed to process message: %v", err)
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
