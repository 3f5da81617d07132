package util

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/pershinghar/go-distributed-advisor-collection/pkg/models"
)

// RabbitMQClient represents a RabbitMQ connection used as the account queue
type RabbitMQClient struct {
	config   *models.RabbitMQConfig
	conn     *amqp.Connection
	channel  *amqp.Channel
	mu       sync.Mutex
	isClosed bool
	log      *zap.Logger
}

// NewRabbitMQClient creates a new RabbitMQ client instance
func NewRabbitMQClient(config *models.RabbitMQConfig, log *zap.Logger) *RabbitMQClient {
	defaults := models.DefaultRabbitMQConfig()
	if config == nil {
		config = defaults
	}

	// Set defaults if not specified
	if config.URL == "" {
		config.URL = defaults.URL
	}
	if config.Exchange == "" {
		config.Exchange = defaults.Exchange
	}
	if config.ExchangeType == "" {
		config.ExchangeType = defaults.ExchangeType
	}
	if config.QueueName == "" {
		config.QueueName = defaults.QueueName
	}
	if config.Prefetch <= 0 {
		config.Prefetch = defaults.Prefetch
	}

	return &RabbitMQClient{
		config: config,
		log:    log.Named("rabbitmq"),
	}
}

// Connect dials RabbitMQ, declares the exchange and the account queue, binds
// them and puts the channel in confirm mode.
func (c *RabbitMQClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return fmt.Errorf("client is closed")
	}

	if c.conn != nil {
		return nil // Already connected
	}

	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	fail := func(format string, err error) error {
		ch.Close()
		conn.Close()
		return fmt.Errorf(format, err)
	}

	err = ch.ExchangeDeclare(
		c.config.Exchange,     // name
		c.config.ExchangeType, // type
		c.config.Durable,      // durable
		false,                 // auto-deleted
		false,                 // internal
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fail("failed to declare exchange: %w", err)
	}

	queue, err := ch.QueueDeclare(
		c.config.QueueName,    // name
		c.config.QueueDurable, // durable
		false,                 // delete when unused
		false,                 // exclusive
		false,                 // no-wait
		nil,                   // arguments
	)
	if err != nil {
		return fail("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(queue.Name, c.config.RoutingKey, c.config.Exchange, false, nil); err != nil {
		return fail("failed to bind queue to exchange: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		return fail("failed to enable publisher confirms: %w", err)
	}

	c.conn = conn
	c.channel = ch
	c.log.Info("connected", zap.String("exchange", c.config.Exchange), zap.String("queue", queue.Name))
	return nil
}

// SendBatch publishes each entry as one persistent message and waits for the
// broker's confirmation. Entries that are not confirmed are reported as failed.
func (c *RabbitMQClient) SendBatch(ctx context.Context, entries []models.QueueEntry) (models.BatchResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return models.BatchResult{}, fmt.Errorf("client is closed")
	}
	if c.channel == nil {
		return models.BatchResult{}, fmt.Errorf("not connected: call Connect() first")
	}

	var result models.BatchResult
	for _, e := range entries {
		dc, err := c.channel.PublishWithDeferredConfirmWithContext(
			ctx,
			c.config.Exchange,   // exchange
			c.config.RoutingKey, // routing key
			false,               // mandatory
			false,               // immediate
			amqp.Publishing{
				ContentType:  "text/plain",
				DeliveryMode: amqp.Persistent,
				MessageId:    e.ID,
				Body:         []byte(e.Body),
			},
		)
		if err != nil {
			result.Failed = append(result.Failed, models.EntryFailure{ID: e.ID, Code: "PublishFailed", Message: err.Error()})
			continue
		}
		if dc != nil {
			acked, err := dc.WaitContext(ctx)
			if err != nil {
				result.Failed = append(result.Failed, models.EntryFailure{ID: e.ID, Code: "ConfirmFailed", Message: err.Error()})
				continue
			}
			if !acked {
				result.Failed = append(result.Failed, models.EntryFailure{ID: e.ID, Code: "Nacked", Message: "broker rejected the message"})
				continue
			}
		}
		result.Successful = append(result.Successful, e.ID)
	}
	return result, nil
}

// Consume starts consuming account ids from the queue in a goroutine.
// The handler is called once per message; a handler error rejects the
// message without requeue.
func (c *RabbitMQClient) Consume(ctx context.Context, handler func(ctx context.Context, body string) error) error {
	c.mu.Lock()
	if c.isClosed || c.channel == nil {
		c.mu.Unlock()
		return fmt.Errorf("client is closed or not connected")
	}
	channel := c.channel
	queueName := c.config.QueueName
	prefetch := c.config.Prefetch
	c.mu.Unlock()

	if err := channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	msgs, err := channel.Consume(
		queueName, // queue
		"",        // consumer tag (empty = auto-generated)
		false,     // auto-ack (false = manual ack)
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.log.Info("started consuming", zap.String("queue", queueName))

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.log.Info("consumer stopped due to context cancellation")
				return
			case msg, ok := <-msgs:
				if !ok {
					c.log.Info("consumer channel closed")
					return
				}

				if err := handler(ctx, string(msg.Body)); err != nil {
					c.log.Error("handler error", zap.String("message_id", msg.MessageId), zap.Error(err))
					msg.Nack(false, false)
					continue
				}
				msg.Ack(false)
			}
		}
	}()

	return nil
}

// Close closes the RabbitMQ connection and cleans up resources
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed {
		return nil
	}

	var errs []error

	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	c.isClosed = true

	if len(errs) > 0 {
		return fmt.Errorf("errors during close: %v", errs)
	}

	return nil
}
