package di

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/usecase"
	"SaxoBridge/pkg/config"
	pkgkafka "SaxoBridge/pkg/kafka"
	"SaxoBridge/pkg/metrics"
)

type closingWriter struct{ closed int }

func (w *closingWriter) WriteMessages(context.Context, ...kafka.Message) error { return nil }

func (w *closingWriter) Close() error {
	w.closed++
	return nil
}

func TestTickPublisherCleanupClosesProducer(t *testing.T) {
	cfg := &config.Config{}
	cfg.Kafka.Topic = "saxo.ticks"

	w := &closingWriter{}
	pub, cleanup := ProvideTickPublisher(pkgkafka.NewProducerWithWriter(w, "snappy"), cfg)
	require.NotNil(t, pub)
	cleanup()
	require.Equal(t, 1, w.closed)

	pub, cleanup = ProvideTickPublisher(nil, cfg)
	require.Nil(t, pub)
	cleanup()
}

func TestArchiveDisabledBuildsNothing(t *testing.T) {
	cfg := &config.Config{}
	cfg.Archive.Backend = usecase.BackendNone

	producer, err := ProvideKafkaProducer(cfg)
	require.NoError(t, err)
	require.Nil(t, producer)

	client, err := ProvideClickHouseClient(cfg)
	require.NoError(t, err)
	require.Nil(t, client)

	store, cleanup, err := ProvideTickStorage(client)
	require.NoError(t, err)
	require.Nil(t, store)
	cleanup()

	archiver := ProvideTickArchiver(cfg, nil, nil, metrics.Nop{})
	require.Nil(t, archiver)
	require.Nil(t, ProvideTickPipeline(cfg, archiver, metrics.Nop{}, nil))
}
