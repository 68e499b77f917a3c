package rabbitMQ

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/messaging"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

type Config struct {
	URL       string
	QueueName string
}

type rabbitChannel struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	queue   amqp.Queue
}

func NewChannel(cfg Config) (messaging.Channel, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Rewrites are useless once the caller gave up, so nothing is persisted
	q, err := channel.QueueDeclare(
		cfg.QueueName, // name
		false,         // durable
		false,         // delete when unused
		false,         // exclusive
		false,         // no-wait
		amqp.Table{
			"x-message-ttl": int64(time.Minute / time.Millisecond),
		},
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &rabbitChannel{conn: conn, channel: channel, queue: q}, nil
}

func (r *rabbitChannel) Publish(ctx context.Context, env entity.Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		"",           // exchange
		r.queue.Name, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			CorrelationId: env.BlobID,
			Body:          body,
			DeliveryMode:  amqp.Transient,
			Timestamp:     time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish envelope: %w", err)
	}
	return nil
}

func (r *rabbitChannel) Subscribe(ctx context.Context) (<-chan entity.Envelope, error) {
	msgs, err := r.channel.Consume(
		r.queue.Name, // queue
		"",           // consumer
		true,         // auto-ack
		false,        // exclusive
		false,        // no-local
		false,        // no-wait
		nil,          // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume messages: %w", err)
	}

	out := make(chan entity.Envelope)
	go r.handleMessages(ctx, msgs, out)
	return out, nil
}

func (r *rabbitChannel) handleMessages(ctx context.Context, msgs <-chan amqp.Delivery, out chan<- entity.Envelope) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var env entity.Envelope
			if err := json.Unmarshal(msg.Body, &env); err != nil {
				logrus.Errorf("Failed to parse envelope: %v", err)
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (r *rabbitChannel) Close() error {
	var errs []error

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
