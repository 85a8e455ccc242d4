// Package sink publishes gateway events to an external log. Kafka is the only
// backend; without brokers a no-op sink is used.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/KafClaw/wagateway/internal/config"
)

// Record is the envelope written for every published event.
type Record struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status,omitempty"`
	Peer      string    `json:"peer,omitempty"`
	Content   string    `json:"content,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Sink receives gateway events.
type Sink interface {
	Publish(ctx context.Context, rec Record) error
	Close() error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Publish(context.Context, Record) error { return nil }
func (Nop) Close() error                          { return nil }

// messageWriter is the part of *kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes records as JSON messages keyed by peer.
type KafkaSink struct {
	w          messageWriter
	topic      string
	maxRetries int
	backoff    time.Duration
	log        *zap.Logger
}

// New returns a KafkaSink when brokers are configured and Nop otherwise.
func New(cfg config.KafkaConfig, log *zap.Logger) Sink {
	if !cfg.Enabled() {
		return Nop{}
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.BrokerList()...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return newKafkaSink(w, cfg.Topic, log)
}

func newKafkaSink(w messageWriter, topic string, log *zap.Logger) *KafkaSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &KafkaSink{
		w:          w,
		topic:      topic,
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		log:        log.Named("sink"),
	}
}

// Publish writes rec, retrying while the partition leader is moving.
func (s *KafkaSink) Publish(ctx context.Context, rec Record) error {
	msg, err := encode(rec)
	if err != nil {
		return err
	}

	var writeErr error
	for attempt := 0; attempt < s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * s.backoff):
			}
		}
		writeErr = s.w.WriteMessages(ctx, msg)
		if writeErr == nil {
			return nil
		}
		if errors.Is(writeErr, kafka.NotLeaderForPartition) || errors.Is(writeErr, kafka.LeaderNotAvailable) {
			s.log.Debug("kafka leader unavailable, retrying", zap.Int("attempt", attempt+1), zap.Error(writeErr))
			continue
		}
		break
	}
	return fmt.Errorf("publish to %s: %w", s.topic, writeErr)
}

func (s *KafkaSink) Close() error {
	return s.w.Close()
}

func encode(rec Record) (kafka.Message, error) {
	value, err := json.Marshal(rec)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode record: %w", err)
	}
	key := rec.Peer
	if key == "" {
		key = rec.Kind
	}
	return kafka.Message{
		Key:     []byte(key),
		Value:   value,
		Headers: []kafka.Header{{Key: "kind", Value: []byte(rec.Kind)}},
		Time:    rec.Timestamp,
	}, nil
}
