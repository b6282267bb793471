package rabbitmq

import (
	"time"

	"github.com/go-faster/errors"
	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// RetriesHeader counts how often a message was scheduled for another attempt.
const RetriesHeader = "x-retries"

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	retryDelay time.Duration
	maxRetries int
	log        *zap.SugaredLogger
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL        string
	Exchange   string        // durable topic exchange, declared on connect
	RetryDelay time.Duration // wait before a failed message is delivered again
	MaxRetries int           // failed attempts after which a message is dropped
}

// NewClient connects to RabbitMQ, opens a channel and declares the exchange.
func NewClient(cfg Config, log *zap.SugaredLogger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "connect to rabbitmq")
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.Wrap(err, "open channel")
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.Wrapf(err, "declare exchange %s", cfg.Exchange)
	}

	log.Infow("rabbitmq client connected", "exchange", cfg.Exchange)

	return &Client{
		conn:       conn,
		channel:    ch,
		exchange:   cfg.Exchange,
		retryDelay: cfg.RetryDelay,
		maxRetries: cfg.MaxRetries,
		log:        log,
	}, nil
}

// Close closes the RabbitMQ channel and connection.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close channel"))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, errors.Wrap(err, "close connection"))
		}
	}
	if len(errs) > 0 {
		return errors.Errorf("rabbitmq close: %v", errs)
	}
	return nil
}

// Publish sends a persistent JSON message to exchange with routingKey.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	if c.channel == nil {
		return errors.New("rabbitmq channel is not available")
	}
	err := c.channel.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrapf(err, "publish %s", routingKey)
	}
	return nil
}

// BindQueue declares a durable queue and binds it to the client's exchange,
// along with the retry queue Consume uses for failed messages.
func (c *Client) BindQueue(queue, routingKey string) error {
	if c.channel == nil {
		return errors.New("rabbitmq channel is not available")
	}
	if _, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	); err != nil {
		return errors.Wrapf(err, "declare queue %s", queue)
	}
	if err := c.channel.QueueBind(queue, routingKey, c.exchange, false, nil); err != nil {
		return errors.Wrapf(err, "bind queue %s to %s", queue, routingKey)
	}

	// Messages parked here expire after retryDelay and return to queue.
	if _, err := c.channel.QueueDeclare(
		RetryQueue(queue),
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-message-ttl":             c.retryDelay.Milliseconds(),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queue,
		},
	); err != nil {
		return errors.Wrapf(err, "declare retry queue for %s", queue)
	}
	return nil
}

// RetryQueue names the delay queue that feeds failed messages back to queue.
func RetryQueue(queue string) string {
	return queue + ".retry"
}

// Consume starts a goroutine delivering messages from queue to handler.
// Failed messages go through the queue's retry queue, see Dispatch.
func (c *Client) Consume(queue string, handler func(msg amqp.Delivery) error) error {
	if c.channel == nil {
		return errors.New("rabbitmq channel is not available for consumption")
	}

	if err := c.channel.Qos(1, 0, false); err != nil {
		return errors.Wrap(err, "set prefetch")
	}

	msgs, err := c.channel.Consume(
		queue, // queue
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return errors.Wrapf(err, "register consumer on %s", queue)
	}

	policy := RetryPolicy{
		MaxRetries: c.maxRetries,
		Schedule: func(msg amqp.Delivery, attempt int) error {
			return c.scheduleRetry(queue, msg, attempt)
		},
	}
	c.log.Infow("waiting for messages", "queue", queue, "retry_delay", c.retryDelay, "max_retries", c.maxRetries)
	go func() {
		for msg := range msgs {
			Dispatch(msg, handler, policy, c.log)
		}
	}()
	return nil
}

func (c *Client) scheduleRetry(queue string, msg amqp.Delivery, attempt int) error {
	err := c.channel.Publish(
		"", // default exchange routes by queue name
		RetryQueue(queue),
		false,
		false,
		amqp.Publishing{
			Headers:      amqp.Table{RetriesHeader: int32(attempt)},
			ContentType:  msg.ContentType,
			Body:         msg.Body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
		})
	if err != nil {
		return errors.Wrapf(err, "schedule retry %d on %s", attempt, queue)
	}
	return nil
}

// RetryPolicy decides what happens to a message its handler failed on.
// Schedule parks the message for a later attempt; attempt starts at 1.
type RetryPolicy struct {
	MaxRetries int
	Schedule   func(msg amqp.Delivery, attempt int) error
}

// Retries returns how often msg was already scheduled for another attempt.
func Retries(msg amqp.Delivery) int {
	switch n := msg.Headers[RetriesHeader].(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

// Dispatch runs handler for one delivery and settles it. A failed message is
// scheduled for another attempt and acked; once MaxRetries attempts were
// scheduled it is rejected without requeue. If scheduling itself fails the
// message is requeued.
func Dispatch(msg amqp.Delivery, handler func(msg amqp.Delivery) error, policy RetryPolicy, log *zap.SugaredLogger) {
	err := handler(msg)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			log.Errorw("ack failed", "tag", msg.DeliveryTag, "error", ackErr)
		}
		return
	}

	attempt := Retries(msg) + 1
	if policy.Schedule == nil || attempt > policy.MaxRetries {
		log.Errorw("message processing failed, giving up", "tag", msg.DeliveryTag, "retries", attempt-1, "error", err)
		if nackErr := msg.Nack(false, false); nackErr != nil {
			log.Errorw("nack failed", "tag", msg.DeliveryTag, "error", nackErr)
		}
		return
	}

	if schedErr := policy.Schedule(msg, attempt); schedErr != nil {
		log.Errorw("could not schedule retry, requeueing", "tag", msg.DeliveryTag, "error", schedErr)
		if nackErr := msg.Nack(false, true); nackErr != nil {
			log.Errorw("nack failed", "tag", msg.DeliveryTag, "error", nackErr)
		}
		return
	}
	log.Warnw("message processing failed, retry scheduled", "tag", msg.DeliveryTag, "attempt", attempt, "error", err)
	if ackErr := msg.Ack(false); ackErr != nil {
		log.Errorw("ack failed", "tag", msg.DeliveryTag, "error", ackErr)
	}
}
