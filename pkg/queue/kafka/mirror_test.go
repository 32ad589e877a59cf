package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/model"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPublishSample(t *testing.T) {
	w := &recordingWriter{}
	m := newMirror(w, DefaultTopic, discard())
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	err := m.PublishSample(context.Background(), model.Sample{ID: "a", Timestamp: ts, Sensor: model.Light, Source: "dev-9", Value: 310})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	require.Equal(t, "light", string(msg.Key))
	require.True(t, msg.Time.Equal(ts))
	require.Equal(t, "source", msg.Headers[0].Key)
	require.Equal(t, "dev-9", string(msg.Headers[0].Value))

	var got model.Sample
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	require.Equal(t, "a", got.ID)
	require.Equal(t, 310.0, got.Value)

	require.NoError(t, m.Close())
	require.True(t, w.closed)
}

func TestPublishSamplesEmptyAndError(t *testing.T) {
	w := &recordingWriter{}
	m := newMirror(w, "t", discard())
	require.NoError(t, m.PublishSamples(context.Background(), nil))
	require.Empty(t, w.msgs)

	w.err = errors.New("broker down")
	err := m.PublishSample(context.Background(), model.Sample{Sensor: model.Humidity})
	require.ErrorIs(t, err, w.err)
}

func TestNewMirrorRequiresBrokers(t *testing.T) {
	_, err := NewMirror(Config{}, nil)
	require.Error(t, err)

	m, err := NewMirror(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultTopic, m.Topic())
}
