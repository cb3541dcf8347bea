package usecase

import (
	"context"
	"fmt"
	"time"

	"SaxoBridge/internal/domain/models"
	drepo "SaxoBridge/internal/domain/repository"
)

const (
	BackendNone       = "none"
	BackendKafka      = "kafka"
	BackendClickHouse = "clickhouse"
)

// TickArchiver routes tick batches to the configured archive backend.
type TickArchiver struct {
	pub     drepo.TickPublisher
	store   drepo.TickStorage
	metrics drepo.Metrics
	backend string
}

// NewTickArchiver creates a new TickArchiver. Only the collaborator of
// the selected backend needs to be non-nil.
func NewTickArchiver(pub drepo.TickPublisher, store drepo.TickStorage, metrics drepo.Metrics, backend string) *TickArchiver {
	return &TickArchiver{
		pub:     pub,
		store:   store,
		metrics: metrics,
		backend: backend,
	}
}

// ProcessBatch archives ticks in one call to the backend.
func (a *TickArchiver) ProcessBatch(ctx context.Context, ticks []*models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}

	start := time.Now()
	var err error

	switch a.backend {
	case BackendKafka:
		err = a.pub.PublishBatch(ctx, ticks)
	case BackendClickHouse:
		err = a.store.StoreBatch(ctx, ticks)
	default:
		err = fmt.Errorf("unknown backend: %s", a.backend)
	}

	if err != nil {
		a.metrics.RecordError("archive_batch")
		return fmt.Errorf("archive batch: %w", err)
	}

	a.metrics.RecordArchived(a.backend, len(ticks))
	a.metrics.RecordLatency("archive_batch", time.Since(start).Seconds())
	return nil
}
