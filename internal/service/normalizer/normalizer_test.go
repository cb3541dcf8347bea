package normalizer

import (
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/domain/models"
)

type errMetrics struct{ errs []string }

func (m *errMetrics) RecordTick(string)             {}
func (m *errMetrics) RecordArchived(string, int)    {}
func (m *errMetrics) RecordLatency(string, float64) {}
func (m *errMetrics) SetActiveContexts(int)         {}
func (m *errMetrics) RecordError(kind string)       { m.errs = append(m.errs, kind) }

func msg(payload string) models.UpstreamMessage {
	return models.UpstreamMessage{MessageID: 7, ReferenceID: "211-0cc175b9c0f1b6a831c399e269772661", Payload: []byte(payload)}
}

func TestClassify(t *testing.T) {
	require.Equal(t, ControlHeartbeat, Classify("_heartbeat"))
	require.Equal(t, ControlResetSubscriptions, Classify("_resetsubscriptions"))
	require.Equal(t, ControlDisconnect, Classify("_disconnect"))
	require.Equal(t, ControlNone, Classify("211-abc"))

	require.False(t, ControlHeartbeat.Teardown())
	require.True(t, ControlResetSubscriptions.Teardown())
	require.True(t, ControlDisconnect.Teardown())
	require.Equal(t, "disconnect", ControlDisconnect.String())
}

func TestSymbolFromReferenceID(t *testing.T) {
	require.Equal(t, "211", SymbolFromReferenceID("211-abc"))
	require.Equal(t, "plain", SymbolFromReferenceID("plain"))
}

func TestQuoteOnly(t *testing.T) {
	ticks, err := New(nil, nil).Normalize(msg(`{"LastUpdated":"2024-05-06T13:14:15.678Z","Quote":{"Bid":1.1,"Ask":1.2}}`), "EURUSD")
	require.NoError(t, err)
	require.Len(t, ticks, 1)

	tk := ticks[0]
	require.Equal(t, models.KindQuote, tk.Kind)
	require.Equal(t, 1, tk.Status)
	require.Equal(t, "211", tk.Symbol)
	require.Equal(t, "EURUSD", tk.Code)
	require.Equal(t, "2024-05-06 13:14:15", tk.Datetime)
	require.Equal(t, 1.1, *tk.Bid)
	require.Equal(t, 1.2, *tk.Ask)
	require.Nil(t, tk.BidSize)
	require.Nil(t, tk.Open)
	require.Nil(t, tk.High)
	require.Nil(t, tk.Low)
	require.Nil(t, tk.Close)

	raw, err := json.Marshal(tk)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":1,"symbol":"211","code":"EURUSD","datetime":"2024-05-06 13:14:15","bid":1.1,"ask":1.2,"type":"q"}`, string(raw))
}

func TestTradeAndSnapshot(t *testing.T) {
	payload := `{
		"LastUpdated":"2024-05-06T13:14:15Z",
		"PriceInfoDetails":{"LastTraded":10.5,"LastTradedSize":100,"Volume":2500,"Open":10.1,"LastClose":9.9},
		"PriceInfo":{"High":10.8,"Low":9.7}
	}`
	ticks, err := New(nil, nil).Normalize(msg(payload), "")
	require.NoError(t, err)
	require.Len(t, ticks, 2)

	trade, snap := ticks[0], ticks[1]
	require.Equal(t, models.KindTrade, trade.Kind)
	require.Equal(t, 10.5, *trade.Close)
	require.Equal(t, 100.0, *trade.Size)
	require.Equal(t, 2500.0, *trade.Volume)
	require.Nil(t, trade.Open)

	require.Equal(t, models.KindSnapshot, snap.Kind)
	require.Equal(t, 10.1, *snap.Open)
	require.Equal(t, 9.9, *snap.Close)
	require.Equal(t, 10.8, *snap.High)
	require.Equal(t, 9.7, *snap.Low)
	require.Nil(t, snap.Size)
}

func TestDetailsWithoutPriceInfoHasNoSnapshot(t *testing.T) {
	ticks, err := New(nil, nil).Normalize(msg(`{"LastUpdated":"2024-05-06T13:14:15Z","Quote":{"Bid":2},"PriceInfoDetails":{"LastTraded":2.1}}`), "")
	require.NoError(t, err)
	require.Len(t, ticks, 2)
	require.Equal(t, models.KindQuote, ticks[0].Kind)
	require.Equal(t, models.KindTrade, ticks[1].Kind)
}

func TestZeroValuesAreOmitted(t *testing.T) {
	ticks, err := New(nil, nil).Normalize(msg(`{"LastUpdated":"2024-05-06T13:14:15Z","Quote":{"Bid":0,"Ask":1.3,"AskSize":0}}`), "")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Nil(t, ticks[0].Bid)
	require.Nil(t, ticks[0].AskSize)
	require.Equal(t, 1.3, *ticks[0].Ask)
}

func TestTimestampFallbackOrder(t *testing.T) {
	n := New(nil, nil)
	cases := []struct {
		ts   string
		want string
	}{
		{`{"BidTime":"2024-01-01T00:00:01Z","AskTime":"2024-01-01T00:00:02Z","LastTradedVolumeTime":"2024-01-01T00:00:03Z"}`, "2024-01-01 00:00:01"},
		{`{"AskTime":"2024-01-01T00:00:02Z","LastTradedVolumeTime":"2024-01-01T00:00:03Z"}`, "2024-01-01 00:00:02"},
		{`{"LastTradedVolumeTime":"2024-01-01T00:00:03.999Z"}`, "2024-01-01 00:00:03"},
	}
	for _, c := range cases {
		ticks, err := n.Normalize(msg(`{"Quote":{"Bid":1},"Timestamps":`+c.ts+`}`), "")
		require.NoError(t, err)
		require.Len(t, ticks, 1)
		require.Equal(t, c.want, ticks[0].Datetime)
	}
}

func TestUndatedTickIsStillEmitted(t *testing.T) {
	m := &errMetrics{}
	ticks, err := New(nil, m).Normalize(msg(`{"Quote":{"Bid":1}}`), "")
	require.NoError(t, err)
	require.Len(t, ticks, 1)
	require.Equal(t, "", ticks[0].Datetime)
	require.Equal(t, []string{"tick_undated"}, m.errs)
}

func TestNoFieldGroups(t *testing.T) {
	ticks, err := New(nil, nil).Normalize(msg(`{"LastUpdated":"2024-05-06T13:14:15Z"}`), "")
	require.NoError(t, err)
	require.Empty(t, ticks)
}

func TestNonObjectPayload(t *testing.T) {
	_, err := New(nil, nil).Normalize(msg(`[1,2]`), "")
	require.ErrorIs(t, err, models.ErrProtocolDecode)
}
