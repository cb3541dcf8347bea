package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/domain/models"
)

type recMetrics struct {
	archived map[string]int
	errs     []string
}

func (m *recMetrics) RecordTick(string)             {}
func (m *recMetrics) RecordLatency(string, float64) {}
func (m *recMetrics) SetActiveContexts(int)         {}
func (m *recMetrics) RecordError(kind string)       { m.errs = append(m.errs, kind) }
func (m *recMetrics) RecordArchived(backend string, n int) {
	if m.archived == nil {
		m.archived = map[string]int{}
	}
	m.archived[backend] += n
}

type fakePublisher struct {
	got []*models.Tick
	err error
}

func (p *fakePublisher) Publish(_ context.Context, t *models.Tick) error {
	p.got = append(p.got, t)
	return p.err
}

func (p *fakePublisher) PublishBatch(_ context.Context, ticks []*models.Tick) error {
	p.got = append(p.got, ticks...)
	return p.err
}

func (p *fakePublisher) Close() error { return nil }

type fakeStorage struct{ got []*models.Tick }

func (s *fakeStorage) Init(context.Context) error   { return nil }
func (s *fakeStorage) Health(context.Context) error { return nil }
func (s *fakeStorage) Close() error                 { return nil }
func (s *fakeStorage) StoreBatch(_ context.Context, ticks []*models.Tick) error {
	s.got = append(s.got, ticks...)
	return nil
}

func TestArchiverRoutesByBackend(t *testing.T) {
	ticks := []*models.Tick{{Symbol: "a"}, {Symbol: "b"}}

	pub, m := &fakePublisher{}, &recMetrics{}
	require.NoError(t, NewTickArchiver(pub, nil, m, BackendKafka).ProcessBatch(context.Background(), ticks))
	require.Len(t, pub.got, 2)
	require.Equal(t, 2, m.archived[BackendKafka])

	store := &fakeStorage{}
	require.NoError(t, NewTickArchiver(nil, store, m, BackendClickHouse).ProcessBatch(context.Background(), ticks))
	require.Len(t, store.got, 2)
	require.Equal(t, 2, m.archived[BackendClickHouse])
}

func TestArchiverErrors(t *testing.T) {
	m := &recMetrics{}
	err := NewTickArchiver(&fakePublisher{err: errors.New("down")}, nil, m, BackendKafka).
		ProcessBatch(context.Background(), []*models.Tick{{Symbol: "a"}})
	require.Error(t, err)
	require.Equal(t, []string{"archive_batch"}, m.errs)

	require.Error(t, NewTickArchiver(nil, nil, m, "s3").ProcessBatch(context.Background(), []*models.Tick{{Symbol: "a"}}))
	require.NoError(t, NewTickArchiver(nil, nil, m, "s3").ProcessBatch(context.Background(), nil))
}
