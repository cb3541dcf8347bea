package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/service/saxo"
)

type fakeChart struct {
	bars   []saxo.ChartSample
	calls  []time.Time
	failAt int
}

// Chart mimics Mode=UpTo: the newest 1000 bars at or before upTo.
func (c *fakeChart) Chart(_ context.Context, _, _, _ string, _ int, upTo time.Time) ([]saxo.ChartSample, error) {
	c.calls = append(c.calls, upTo)
	if c.failAt > 0 && len(c.calls) == c.failAt {
		return nil, errors.New("503")
	}
	var out []saxo.ChartSample
	for _, b := range c.bars {
		if !b.Time.After(upTo) {
			out = append(out, b)
		}
	}
	if len(out) > 1000 {
		out = out[len(out)-1000:]
	}
	return out, nil
}

func dailyBars(from, to time.Time) []saxo.ChartSample {
	var out []saxo.ChartSample
	for d := from; !d.After(to); d = d.Add(day) {
		out = append(out, saxo.ChartSample{Time: d, OpenBid: 1, HighBid: 2, LowBid: 0.5, CloseBid: 1.5})
	}
	return out
}

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func collect(t *testing.T, w *HistoryWalker, q HistoryQuery) []models.BarBatch {
	t.Helper()
	var batches []models.BarBatch
	require.NoError(t, w.Walk(context.Background(), "john", q, func(b models.BarBatch) error {
		batches = append(batches, b)
		return nil
	}))
	return batches
}

func TestWalkTwoWindowsNoDuplicates(t *testing.T) {
	end := date(2024, 12, 31)
	start := end.Add(-1500 * day)
	chart := &fakeChart{bars: dailyBars(date(2015, 1, 1), end)}
	w := NewHistoryWalker(chart, staticTokens{}, nil, nil, nil)

	batches := collect(t, w, HistoryQuery{Symbol: "21", Code: "EURUSD", Type: "FxSpot", Period: "day", Start: start, End: end})
	require.Len(t, batches, 2)
	require.False(t, batches[0].Last())
	require.True(t, batches[1].Last())
	require.Len(t, batches[0].Bars, 1000)
	require.Len(t, batches[1].Bars, 500)
	require.Equal(t, date(2025, 1, 1), chart.calls[0])

	seen := map[string]bool{}
	for _, b := range batches {
		require.Equal(t, "21", b.Symbol)
		require.Equal(t, "EURUSD", b.Code)
		for i, bar := range b.Bars {
			require.False(t, seen[bar.Datetime], bar.Datetime)
			seen[bar.Datetime] = true
			if i > 0 {
				require.Less(t, b.Bars[i-1].Datetime, bar.Datetime)
			}
		}
	}
	require.Equal(t, start.Add(day).Format("2006-01-02")+" 00:00:00.000", batches[1].Bars[0].Datetime)
	require.Equal(t, "2024-12-31 00:00:00.000", batches[0].Bars[999].Datetime)
	require.Equal(t, models.Bar{Datetime: "2024-12-31 00:00:00.000", Open: 1, High: 2, Low: 0.5, Close: 1.5}, batches[0].Bars[999])
}

func TestWalkErrorEndsWithEmptyLastBatch(t *testing.T) {
	end := date(2024, 12, 31)
	chart := &fakeChart{bars: dailyBars(date(2015, 1, 1), end), failAt: 2}
	w := NewHistoryWalker(chart, staticTokens{}, nil, nil, nil)

	batches := collect(t, w, HistoryQuery{Symbol: "21", Period: "day", Start: end.Add(-1500 * day), End: end})
	require.Len(t, batches, 2)
	require.Len(t, batches[0].Bars, 1000)
	require.True(t, batches[1].Last())
	require.Empty(t, batches[1].Bars)
}

func TestWalkWithoutBoundaryEmitsFinalBatch(t *testing.T) {
	end := date(2024, 12, 31)
	chart := &fakeChart{bars: dailyBars(date(2024, 12, 20), end)}
	w := NewHistoryWalker(chart, staticTokens{}, nil, nil, nil)

	batches := collect(t, w, HistoryQuery{Symbol: "21", Period: "week", Start: date(2024, 12, 1), End: end})
	require.Len(t, batches, 2)
	require.Len(t, batches[0].Bars, 12)
	require.False(t, batches[0].Last())
	require.True(t, batches[1].Last())
	require.Empty(t, batches[1].Bars)
}

func TestWalkMinuteWindowsStepByDay(t *testing.T) {
	chart := &fakeChart{}
	w := NewHistoryWalker(chart, staticTokens{}, nil, nil, nil)

	batches := collect(t, w, HistoryQuery{Symbol: "21", Period: "1min", Start: date(2024, 3, 1), End: date(2024, 3, 3)})
	require.Equal(t, []time.Time{date(2024, 3, 4), date(2024, 3, 3), date(2024, 3, 2), date(2024, 3, 1)}, chart.calls)
	require.Len(t, batches, 5)
	require.True(t, batches[4].Last())
}

func TestWalkResolvesCode(t *testing.T) {
	chart := &fakeChart{bars: dailyBars(date(2024, 1, 1), date(2024, 1, 10))}
	res := mapResolver{"MSFT:xnas": {Symbol: "261", Code: "MSFT:xnas", Type: "CfdOnStock"}}
	w := NewHistoryWalker(chart, staticTokens{}, res, nil, nil)

	batches := collect(t, w, HistoryQuery{Code: "MSFT:xnas", Period: "day", Start: date(2024, 1, 5), End: date(2024, 1, 10)})
	require.Len(t, batches, 1)
	require.True(t, batches[0].Last())
	require.Equal(t, "261", batches[0].Symbol)
	require.Len(t, batches[0].Bars, 5)
	require.Equal(t, "2024-01-06 00:00:00.000", batches[0].Bars[0].Datetime)
}

func TestWalkRejectsBadInput(t *testing.T) {
	w := NewHistoryWalker(&fakeChart{}, staticTokens{}, mapResolver{}, nil, nil)
	yield := func(models.BarBatch) error { return nil }
	ctx := context.Background()

	err := w.Walk(ctx, "john", HistoryQuery{Symbol: "21", Period: "5min", Start: date(2024, 1, 1), End: date(2024, 1, 2)}, yield)
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	err = w.Walk(ctx, "john", HistoryQuery{Symbol: "21", Period: "day", Start: date(2024, 1, 2), End: date(2024, 1, 1)}, yield)
	require.ErrorIs(t, err, models.ErrInvalidRequest)

	err = w.Walk(ctx, "john", HistoryQuery{Code: "NOPE", Period: "day", Start: date(2024, 1, 1), End: date(2024, 1, 2)}, yield)
	require.ErrorIs(t, err, models.ErrNotFound)
}
