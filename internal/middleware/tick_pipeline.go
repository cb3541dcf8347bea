package middleware

import (
	"context"
	"sync"
	"time"

	"SaxoBridge/internal/domain/models"
	domrepo "SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/service/ratelimit"
	"SaxoBridge/pkg/logger"
)

// BatchProc is the downstream the pipeline flushes into.
type BatchProc interface {
	ProcessBatch(ctx context.Context, ticks []*models.Tick) error
}

// TickPipeline sits between the streaming path and the archive. Offer
// never blocks; ticks are throttled per symbol, buffered and flushed in
// batches from a background goroutine.
type TickPipeline struct {
	proc      BatchProc
	metrics   domrepo.Metrics
	logger    *logger.Logger
	limiter   *ratelimit.Limiter
	batchSize int
	interval  time.Duration
	stopWait  time.Duration
	bufCh     chan *models.Tick

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

type PipelineOption func(*TickPipeline)

// WithMaxRPS sets the max ticks per second per symbol. 0 disables the throttle.
func WithMaxRPS(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n >= 0 {
			p.limiter = ratelimit.New(float64(n), max(n, 1))
		}
	}
}

// WithBufferSize sets the number of ticks held between flushes.
func WithBufferSize(n int) PipelineOption {
	return func(p *TickPipeline) {
		if n > 0 {
			p.bufCh = make(chan *models.Tick, n)
		}
	}
}

// WithBatch sets the flush size and interval.
func WithBatch(size int, interval time.Duration) PipelineOption {
	return func(p *TickPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithStopTimeout bounds the final flush run by Stop.
func WithStopTimeout(d time.Duration) PipelineOption {
	return func(p *TickPipeline) {
		if d > 0 {
			p.stopWait = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(l *logger.Logger) PipelineOption {
	return func(p *TickPipeline) { p.logger = l }
}

// NewTickPipeline creates a new pipeline.
func NewTickPipeline(proc BatchProc, metrics domrepo.Metrics, opts ...PipelineOption) *TickPipeline {
	p := &TickPipeline{
		proc:      proc,
		metrics:   metrics,
		limiter:   ratelimit.New(20, 20),
		batchSize: 500,
		interval:  time.Second,
		stopWait:  10 * time.Second,
		bufCh:     make(chan *models.Tick, 10000),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Offer queues t for archiving. It reports false when t was dropped.
func (p *TickPipeline) Offer(t *models.Tick) bool {
	if t == nil || t.Symbol == "" {
		p.metrics.RecordError("pipeline_validate")
		return false
	}
	if !p.limiter.Allow(t.Symbol) {
		p.metrics.RecordError("pipeline_throttle")
		return false
	}
	select {
	case p.bufCh <- t:
		return true
	default:
		p.metrics.RecordError("pipeline_buffer_full")
		return false
	}
}

// Start launches background flushing.
func (p *TickPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.loop(ctx)
}

// Stop flushes what is pending and stops the background goroutine.
func (p *TickPipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	close(p.stopCh)
	done := p.doneCh
	p.mu.Unlock()
	<-done
}

func (p *TickPipeline) loop(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	pending := make([]*models.Tick, 0, p.batchSize)
	failed := false
	flush := func(ctx context.Context) {
		if len(pending) == 0 {
			return
		}
		failed = true
		if err := p.proc.ProcessBatch(ctx, pending); err != nil {
			p.metrics.RecordError("pipeline_flush")
			p.logger.Warn("archive flush failed", logger.Int("pending", len(pending)), logger.Error(err))
			// keep the batch for the next tick, capped at one buffer's worth
			if over := len(pending) - cap(p.bufCh); over > 0 {
				pending = append(pending[:0], pending[over:]...)
				p.metrics.RecordError("pipeline_buffer_drop")
			}
			return
		}
		failed = false
		pending = make([]*models.Tick, 0, p.batchSize)
	}

	for {
		select {
		case <-p.stopCh:
			p.drain(&pending)
			fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.stopWait)
			flush(fctx)
			cancel()
			return
		case <-ctx.Done():
			return
		case t := <-p.bufCh:
			pending = append(pending, t)
			// after a failure only the ticker retries
			if len(pending) >= p.batchSize && !failed {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}

func (p *TickPipeline) drain(pending *[]*models.Tick) {
	for {
		select {
		case t := <-p.bufCh:
			*pending = append(*pending, t)
		default:
			return
		}
	}
}
