// Package sink publishes delivered payloads to external systems.
package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Kafka publishes normalized payloads keyed by symbol, so a topic
// partition always carries one symbol's events in order.
type Kafka struct {
	w   *kafka.Writer
	log *zap.SugaredLogger
}

func NewKafka(brokers []string, topic string, log *zap.SugaredLogger) *Kafka {
	return &Kafka{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
		log: log,
	}
}

func (s *Kafka) Publish(ctx context.Context, symbol string, payload []byte) error {
	err := s.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(symbol),
		Value: payload,
	})
	if err != nil {
		if s.log != nil {
			s.log.Warnw("kafka_publish_failed", "symbol", symbol, "err", err)
		}
		return fmt.Errorf("publish %s: %w", symbol, err)
	}
	return nil
}

func (s *Kafka) Close() error { return s.w.Close() }
