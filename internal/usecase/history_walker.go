package usecase

import (
	"context"
	"fmt"
	"slices"
	"time"

	"SaxoBridge/internal/domain/models"
	drepo "SaxoBridge/internal/domain/repository"
	"SaxoBridge/internal/service/saxo"
	"SaxoBridge/pkg/logger"
	"SaxoBridge/pkg/util"
)

const day = 24 * time.Hour

// ChartAPI fetches one window of history bars, oldest first.
type ChartAPI interface {
	Chart(ctx context.Context, token, uic, assetType string, horizon int, upTo time.Time) ([]saxo.ChartSample, error)
}

// HistoryQuery is one backfill request. Start and End are calendar days.
type HistoryQuery struct {
	Symbol string
	Code   string
	Type   string
	Period string
	Start  time.Time
	End    time.Time
}

// HistoryWalker pages backward through upstream history.
type HistoryWalker struct {
	api      ChartAPI
	tokens   drepo.TokenSource
	resolver drepo.SymbolResolver
	metrics  drepo.Metrics
	logger   *logger.Logger
}

func NewHistoryWalker(api ChartAPI, tokens drepo.TokenSource, resolver drepo.SymbolResolver, metrics drepo.Metrics, l *logger.Logger) *HistoryWalker {
	return &HistoryWalker{api: api, tokens: tokens, resolver: resolver, metrics: metrics, logger: l}
}

// Walk calls yield with each batch as soon as it is built, newest window
// first and ascending inside each batch. The final batch is flagged last.
// Errors returned before the first yield mean nothing was written; an
// upstream failure during the walk ends it with an empty last batch.
func (w *HistoryWalker) Walk(ctx context.Context, user string, q HistoryQuery, yield func(models.BarBatch) error) error {
	horizon, err := saxo.Horizon(q.Period)
	if err != nil {
		return err
	}
	if q.End.Before(q.Start) {
		return fmt.Errorf("%w: end before start", models.ErrInvalidRequest)
	}
	token, err := w.tokens.ValidToken(ctx, user)
	if err != nil {
		return err
	}
	if q.Symbol == "" {
		inst, err := w.resolver.Resolve(ctx, token, q.Code, q.Type)
		if err != nil {
			return err
		}
		q.Symbol, q.Type = inst.Symbol, inst.Type
	}

	step := 1000 * day
	if q.Period == "1min" {
		step = day
	}
	startDay := util.DayOf(q.Start)
	newBatch := func() models.BarBatch {
		return models.BarBatch{Status: 1, Symbol: q.Symbol, Code: q.Code, Bars: []models.Bar{}}
	}

	started := time.Now()
	defer func() {
		if w.metrics != nil {
			w.metrics.RecordLatency("history_walk", time.Since(started).Seconds())
		}
	}()

	var prevOldest time.Time
	for upTo := util.DayOf(q.End).Add(day); !upTo.Before(startDay); upTo = upTo.Add(-step) {
		batch := newBatch()
		reached := false

		samples, err := w.api.Chart(ctx, token, q.Symbol, q.Type, horizon, upTo)
		if err != nil {
			w.logger.Warn("history window failed",
				logger.String("symbol", q.Symbol),
				logger.String("up_to", upTo.Format(util.DateLayout)),
				logger.Error(err))
			if w.metrics != nil {
				w.metrics.RecordError("history_window")
			}
			reached = true
		} else {
			for j := len(samples) - 1; j >= 0; j-- {
				s := samples[j]
				if !util.DayOf(s.Time).After(startDay) {
					reached = true
					break
				}
				if !prevOldest.IsZero() && !s.Time.Before(prevOldest) {
					continue
				}
				batch.Bars = append(batch.Bars, s.Bar())
				prevOldest = s.Time
			}
			slices.Reverse(batch.Bars)
		}

		if reached {
			batch.LastDataSet = 1
		}
		if err := yield(batch); err != nil {
			return err
		}
		if reached {
			return nil
		}
	}

	last := newBatch()
	last.LastDataSet = 1
	return yield(last)
}
