// Package kafka mirrors ingested samples onto a Kafka topic for downstream
// consumers. Messages are keyed by sensor so each sensor's readings stay in order.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/tunogya/sensorcast/pkg/model"
)

// DefaultTopic is used when Config.Topic is empty
const DefaultTopic = "sensor-samples"

// Config holds mirror configuration
type Config struct {
	Brokers []string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Mirror publishes samples to Kafka
type Mirror struct {
	w     messageWriter
	topic string
	log   *slog.Logger
}

// NewMirror creates a synchronous, hash-balanced writer for cfg.Topic
func NewMirror(cfg Config, log *slog.Logger) (*Mirror, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("no brokers provided")
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if log == nil {
		log = slog.Default()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
	return newMirror(w, cfg.Topic, log), nil
}

func newMirror(w messageWriter, topic string, log *slog.Logger) *Mirror {
	return &Mirror{w: w, topic: topic, log: log.With(slog.String("component", "kafka-mirror"))}
}

// Topic returns the destination topic
func (m *Mirror) Topic() string {
	return m.topic
}

// PublishSample writes s keyed by its sensor
func (m *Mirror) PublishSample(ctx context.Context, s model.Sample) error {
	return m.PublishSamples(ctx, []model.Sample{s})
}

// PublishSamples writes samples in one batch
func (m *Mirror) PublishSamples(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(samples))
	for _, s := range samples {
		value, err := json.Marshal(s)
		if err != nil {
			return fmt.Errorf("failed to encode sample: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(s.Sensor),
			Value: value,
			Time:  s.Timestamp,
			Headers: []kafka.Header{
				{Key: "source", Value: []byte(s.Source)},
			},
		})
	}

	if err := m.w.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to write to kafka topic %s: %w", m.topic, err)
	}
	m.log.Debug("samples mirrored", "count", len(msgs))
	return nil
}

// Close flushes and closes the writer
func (m *Mirror) Close() error {
	return m.w.Close()
}
