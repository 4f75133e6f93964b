package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	amqpContentType = "application/json"
	amqpTypeMail    = "gainfair.mail.v1"
)

// AMQPQueue publishes messages to a durable RabbitMQ queue with
// publisher confirms.
type AMQPQueue struct {
	conn  *amqp.Connection
	queue string

	mu       sync.Mutex
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func DialAMQP(url, queue string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	q := &AMQPQueue{conn: conn, queue: queue}
	if err := q.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQPQueue) openChannel() error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(q.queue, true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("rabbitmq confirm mode: %w", err)
	}
	q.ch = ch
	q.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	return nil
}

// Enqueue returns once the broker has confirmed the message.
func (q *AMQPQueue) Enqueue(ctx context.Context, m Message) error {
	if err := m.validate(); err != nil {
		return errors.Join(ErrInvalidMessage, err)
	}
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mail: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch == nil || q.ch.IsClosed() {
		if err := q.openChannel(); err != nil {
			return err
		}
	}
	err = q.ch.PublishWithContext(ctx, "", q.queue, false, false, amqp.Publishing{
		ContentType:  amqpContentType,
		Type:         amqpTypeMail,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}
	select {
	case c, ok := <-q.confirms:
		if !ok {
			q.ch = nil
			return fmt.Errorf("publish mail: channel closed before confirm")
		}
		if !c.Ack {
			return fmt.Errorf("publish mail: broker nacked delivery %d", c.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		// The confirm for this tag may still arrive; drop the channel so
		// it is not read as the next message's confirm.
		_ = q.ch.Close()
		q.ch = nil
		return ctx.Err()
	}
}

func (q *AMQPQueue) Ping() error {
	if q.conn.IsClosed() {
		return errors.New("rabbitmq connection closed")
	}
	return nil
}

func (q *AMQPQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil {
		q.ch.Close()
	}
	if q.conn != nil {
		q.conn.Close()
	}
}

// Acknowledger is the subset of amqp.Delivery the consumer settles.
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// AMQPConsumer delivers messages published by AMQPQueue.
type AMQPConsumer struct {
	url   string
	queue string
	from  string
	out   Deliverer
	log   zerolog.Logger

	requeueDelay time.Duration
}

func NewAMQPConsumer(url, queue, from string, out Deliverer, log zerolog.Logger) *AMQPConsumer {
	return &AMQPConsumer{
		url:          url,
		queue:        queue,
		from:         from,
		out:          out,
		log:          log.With().Str("component", "amqp-consumer").Logger(),
		requeueDelay: 5 * time.Second,
	}
}

// Run consumes until ctx is done.
func (c *AMQPConsumer) Run(ctx context.Context) error {
	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer ch.Close()
	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue declare: %w", err)
	}
	if err := ch.Qos(4, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}
	c.log.Info().Str("queue", c.queue).Msg("consuming mail queue")
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			c.Handle(ctx, d.Body, &d)
		}
	}
}

// Handle delivers one queued message and settles it: ack on success or on
// an undecodable body, nack with requeue on a delivery error.
func (c *AMQPConsumer) Handle(ctx context.Context, body []byte, ack Acknowledger) {
	var m Message
	if err := json.Unmarshal(body, &m); err != nil || m.validate() != nil {
		c.log.Error().Err(err).Msg("dropping malformed mail message")
		_ = ack.Ack(false)
		return
	}
	sendCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := c.out.Deliver(sendCtx, Envelope(c.from, m)); err != nil {
		c.log.Warn().Err(err).Str("subject", m.Subject).Msg("delivery failed, requeueing")
		// Hold the message briefly so a relay outage does not spin.
		select {
		case <-ctx.Done():
		case <-time.After(c.requeueDelay):
		}
		_ = ack.Nack(false, true)
		return
	}
	_ = ack.Ack(false)
}
