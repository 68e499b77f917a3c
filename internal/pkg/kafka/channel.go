package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ds124wfegd/tile-overlay/internal/entity"
	"github.com/ds124wfegd/tile-overlay/internal/pkg/messaging"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

// maxMessageBytes bounds one envelope on both ends. A composited 3000x3000
// tile travels base64-encoded inside JSON, well past kafka-go's 1 MiB default
// batch. The broker's message.max.bytes (and the topic's max.message.bytes)
// must allow the same size.
const maxMessageBytes = 10 << 20

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type kafkaChannel struct {
	cfg    Config
	writer *kafka.Writer

	mu      sync.Mutex
	readers []*kafka.Reader
}

// NewChannel connects to the brokers and makes sure the topic exists. An
// error means Kafka is unreachable and the caller should pick another driver.
func NewChannel(ctx context.Context, cfg Config) (messaging.Channel, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: no brokers configured")
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, err := kafka.DialContext(dialCtx, "tcp", cfg.Brokers[0])
	if err != nil {
		return nil, fmt.Errorf("kafka connection failed: %w", err)
	}
	defer conn.Close()

	err = conn.CreateTopics(kafka.TopicConfig{
		Topic:             cfg.Topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		logrus.Warnf("Could not create topic %s (might already exist): %v", cfg.Topic, err)
	}

	logrus.Infof("Connected to Kafka at %v, topic %s", cfg.Brokers, cfg.Topic)
	return &kafkaChannel{cfg: cfg, writer: newWriter(cfg)}, nil
}

func newWriter(cfg Config) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 5 * time.Millisecond,
		BatchBytes:   maxMessageBytes,
		RequiredAcks: kafka.RequireOne,
	}
}

func readerConfig(cfg Config) kafka.ReaderConfig {
	return kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       1,
		MaxBytes:       maxMessageBytes,
		MaxWait:        50 * time.Millisecond,
		CommitInterval: time.Second,
		StartOffset:    kafka.LastOffset,
	}
}

func (c *kafkaChannel) Publish(ctx context.Context, env entity.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	msg := kafka.Message{
		Key:   []byte(env.BlobID),
		Value: value,
		Time:  time.Now(),
	}
	if err := c.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write to %s: %w", c.cfg.Topic, err)
	}
	return nil
}

func (c *kafkaChannel) Subscribe(ctx context.Context) (<-chan entity.Envelope, error) {
	reader := kafka.NewReader(readerConfig(c.cfg))
	c.mu.Lock()
	c.readers = append(c.readers, reader)
	c.mu.Unlock()

	out := make(chan entity.Envelope)
	go func() {
		defer close(out)
		for {
			msg, err := reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				logrus.Errorf("Error reading message from Kafka: %v", err)
				select {
				case <-time.After(500 * time.Millisecond):
				case <-ctx.Done():
					return
				}
				continue
			}

			var env entity.Envelope
			if err := json.Unmarshal(msg.Value, &env); err != nil {
				logrus.Errorf("Failed to parse envelope at offset %d: %v", msg.Offset, err)
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (c *kafkaChannel) Close() error {
	var errs []error
	c.mu.Lock()
	for _, r := range c.readers {
		if err := r.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	c.readers = nil
	c.mu.Unlock()
	if err := c.writer.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
