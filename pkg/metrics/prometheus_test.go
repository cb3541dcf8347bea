package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordTick("q")
	r.RecordTick("q")
	r.RecordError("decode")
	r.RecordArchived("kafka", 3)
	r.SetActiveContexts(2)

	require.Equal(t, 2.0, testutil.ToFloat64(r.ticks.WithLabelValues("q")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("decode")))
	require.Equal(t, 3.0, testutil.ToFloat64(r.archived.WithLabelValues("kafka")))
	require.Equal(t, 2.0, testutil.ToFloat64(r.activeContexts))
}
