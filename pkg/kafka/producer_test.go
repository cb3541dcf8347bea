package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return w.err
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestPublishBatchEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "snappy")

	err := p.PublishBatch(context.Background(), "saxo.ticks", []Message{
		{Key: []byte("211"), Value: map[string]interface{}{"symbol": "211", "type": "q"}},
		{Key: []byte("21"), Value: "raw"},
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)
	require.Equal(t, "saxo.ticks", w.msgs[0].Topic)
	require.JSONEq(t, `{"symbol":"211","type":"q"}`, string(w.msgs[0].Value))
	require.Equal(t, "raw", string(w.msgs[1].Value))

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestPublishPropagatesWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "snappy")
	require.Error(t, p.Publish(context.Background(), "t", nil, []byte("x")))
}

func TestNewProducerRequiresBrokers(t *testing.T) {
	_, err := NewProducer()
	require.Error(t, err)
}
