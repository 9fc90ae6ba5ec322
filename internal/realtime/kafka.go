package realtime

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/dpup/hazards.ersn.net/server/internal/config"
)

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// KafkaBackplane fans events out over a kafka topic. Each instance reads
// with its own consumer group so every instance sees every event.
type KafkaBackplane struct {
	writer kafkaWriter
	reader kafkaReader
}

// NewKafkaBackplane creates a writer and a per-instance reader for cfg.Topic
func NewKafkaBackplane(cfg config.KafkaBus) *KafkaBackplane {
	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers: cfg.Brokers,
		Topic:   cfg.Topic,
	})
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     "hazards-" + uuid.NewString(),
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.LastOffset,
		MaxWait:     1 * time.Second,
	})
	return &KafkaBackplane{writer: writer, reader: reader}
}

// Publish writes payload to the topic
func (b *KafkaBackplane) Publish(ctx context.Context, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{Value: payload})
}

// Subscribe delivers topic messages to handler
func (b *KafkaBackplane) Subscribe(ctx context.Context, handler func(payload []byte)) error {
	go func() {
		for {
			m, err := b.reader.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, io.EOF) {
					return
				}
				logging.Warnw(ctx, "Kafka read error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			handler(m.Value)
		}
	}()
	return nil
}

// Close closes the reader and writer
func (b *KafkaBackplane) Close() error {
	rerr := b.reader.Close()
	if err := b.writer.Close(); err != nil {
		return err
	}
	return rerr
}
