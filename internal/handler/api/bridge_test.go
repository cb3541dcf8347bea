package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/service/saxo"
	"SaxoBridge/internal/usecase"
)

type fakeAuth struct {
	tokens   map[string]string
	records  map[string]bool
	exchange error
	states   []string
	validCalls int
}

func (a *fakeAuth) ValidToken(_ context.Context, user string) (string, error) {
	a.validCalls++
	if tok, ok := a.tokens[user]; ok {
		return tok, nil
	}
	return "", &models.ReauthRequiredError{AuthURL: a.AuthorizeURL(user)}
}

func (a *fakeAuth) AuthorizeURL(user string) string {
	return "https://auth/authorize?state=saxobank." + user
}

func (a *fakeAuth) Status(_ context.Context, user string) (bool, error) {
	_, ok := a.tokens[user]
	return ok, nil
}

func (a *fakeAuth) HasRecord(_ context.Context, user string) (bool, error) {
	return a.records[user], nil
}

func (a *fakeAuth) ExchangeCode(_ context.Context, state, _ string) (string, error) {
	a.states = append(a.states, state)
	return "john", a.exchange
}

type fakeListener struct {
	lines  chan []byte
	mu     sync.Mutex
	closed bool
}

func (l *fakeListener) Lines() <-chan []byte { return l.lines }

func (l *fakeListener) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

type fakeSessions struct {
	listener *fakeListener
	openErr  error
	result   usecase.CloseResult
	got      []models.Instrument
}

func (s *fakeSessions) Open(_ context.Context, _ string, inst []models.Instrument) (Listener, error) {
	s.got = inst
	if s.openErr != nil {
		return nil, s.openErr
	}
	return s.listener, nil
}

func (s *fakeSessions) Close(_ context.Context, _ string, inst []models.Instrument) (usecase.CloseResult, error) {
	s.got = inst
	return s.result, nil
}

type fakeWalker struct {
	batches []models.BarBatch
	err     error
	got     usecase.HistoryQuery
}

func (w *fakeWalker) Walk(_ context.Context, _ string, q usecase.HistoryQuery, yield func(models.BarBatch) error) error {
	w.got = q
	if w.err != nil {
		return w.err
	}
	for _, b := range w.batches {
		if err := yield(b); err != nil {
			return err
		}
	}
	return nil
}

type fakeSearch struct {
	hits []saxo.InstrumentData
	err  error
	tok  string
}

func (s *fakeSearch) SearchInstruments(_ context.Context, token, _, _ string) ([]saxo.InstrumentData, error) {
	s.tok = token
	return s.hits, s.err
}

type fixture struct {
	e        *echo.Echo
	auth     *fakeAuth
	sessions *fakeSessions
	walker   *fakeWalker
	search   *fakeSearch
}

func newFixture() *fixture {
	f := &fixture{
		auth:     &fakeAuth{tokens: map[string]string{"john": "tok-john"}, records: map[string]bool{"john": true}},
		sessions: &fakeSessions{},
		walker:   &fakeWalker{},
		search:   &fakeSearch{},
	}
	f.e = echo.New()
	NewBridgeHandler(f.auth, f.sessions, f.walker, f.search, nil).RegisterRoutes(f.e)
	return f
}

func (f *fixture) do(method, target, user string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		req.SetBasicAuth(user, "x")
	}
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestMissingUserIsUnauthorized(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/lookup?q=AAPL", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Unauthorized", decode(t, rec)["message"])

	rec = f.do(http.MethodPost, "/api/login", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMissingTokenAnswersReauthRecord(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/lookup?q=AAPL&tusername=jane", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "0", body["status"])
	require.Equal(t, "990", body["errorcode"])
	require.Equal(t, "https://auth/authorize?state=saxobank.jane", body["errordesc"])
}

func TestLoginAndAuthorize(t *testing.T) {
	f := newFixture()
	require.Equal(t, "authorized", decode(t, f.do(http.MethodPost, "/api/login", "john"))["auth_url"])
	require.Equal(t, "https://auth/authorize?state=saxobank.jane", decode(t, f.do(http.MethodPost, "/api/login", "jane"))["auth_url"])
	require.Zero(t, f.auth.validCalls)

	body := decode(t, f.do(http.MethodGet, "/api/authorize", "john"))
	require.EqualValues(t, 1, body["status"])
	require.Equal(t, "authorized", body["auth_url"])
	require.EqualValues(t, 0, decode(t, f.do(http.MethodGet, "/api/authorize", "jane"))["status"])
}

func TestCallback(t *testing.T) {
	f := newFixture()
	rec := f.do(http.MethodGet, "/api/acb?code=abc&state=saxobank.john", "")
	require.Equal(t, "Authorization successfully granted", rec.Body.String())
	require.Equal(t, []string{"saxobank.john"}, f.auth.states)

	f.auth.exchange = models.ErrAuthFailed
	rec = f.do(http.MethodGet, "/api/acb?code=abc&state=saxobank.john", "")
	require.Equal(t, "Authorization failed", rec.Body.String())

	rec = f.do(http.MethodGet, "/api/acb?state=saxobank.john", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuotesStreamsLines(t *testing.T) {
	f := newFixture()
	l := &fakeListener{lines: make(chan []byte, 2)}
	l.lines <- []byte(`{"status":1,"heartbeat":1}`)
	l.lines <- []byte(`{"status":1,"symbol":"211","type":"q"}`)
	close(l.lines)
	f.sessions.listener = l

	insts := []models.Instrument{{Symbol: "211", Code: "AAPL:xnas", Type: "CfdOnStock"}, {Code: "MSFT:xnas"}}
	raw, err := json.Marshal(insts)
	require.NoError(t, err)
	target := "/api/quotes?nl=1&instruments=" + base64.URLEncoding.EncodeToString(raw)

	rec := f.do(http.MethodGet, target, "john")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "{\"status\":1,\"heartbeat\":1}\r\n{\"status\":1,\"symbol\":\"211\",\"type\":\"q\"}\r\n", rec.Body.String())
	require.Equal(t, insts, f.sessions.got)
	require.True(t, l.closed)
}

func TestQuotesWithoutNewline(t *testing.T) {
	f := newFixture()
	l := &fakeListener{lines: make(chan []byte, 2)}
	l.lines <- []byte(`{"a":1}`)
	l.lines <- []byte(`{"b":2}`)
	close(l.lines)
	f.sessions.listener = l

	rec := f.do(http.MethodGet, "/api/quotes?symbol=21&type=FxSpot", "john")
	require.Equal(t, `{"a":1}{"b":2}`, rec.Body.String())
	require.Equal(t, []models.Instrument{{Symbol: "21", Type: "FxSpot"}}, f.sessions.got)
}

func TestQuotesErrors(t *testing.T) {
	f := newFixture()
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/quotes", "john").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/quotes?instruments=***", "john").Code)

	f.sessions.openErr = models.ErrUpstreamUnavailable
	require.Equal(t, http.StatusBadGateway, f.do(http.MethodGet, "/api/quotes?symbol=21&type=FxSpot", "john").Code)
}

func TestCloseQuotes(t *testing.T) {
	f := newFixture()
	f.sessions.result = usecase.CloseUnsubscribed
	rec := f.do(http.MethodDelete, "/api/quotes?symbol=21&type=FxSpot", "john")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	require.Equal(t, "unsubscribed", body["message"])
	require.Equal(t, true, body["removed"])

	f.sessions.result = usecase.CloseNothingRemoved
	body = decode(t, f.do(http.MethodDelete, "/api/quotes?symbol=99&type=FxSpot", "john"))
	require.Equal(t, "no matching subscription", body["message"])
	require.Equal(t, false, body["removed"])

	f.sessions.result = usecase.CloseNotFound
	body = decode(t, f.do(http.MethodDelete, "/api/quotes?symbol=21", "john"))
	require.Equal(t, "Streaming Connection not found", body["message"])
	require.Equal(t, false, body["removed"])
}

func TestLookup(t *testing.T) {
	f := newFixture()
	f.search.hits = []saxo.InstrumentData{{Identifier: 211, AssetType: "CfdOnStock", Symbol: "AAPL:xnas", ExchangeID: "NASDAQ", Description: "Apple Inc.", CurrencyCode: "USD", IssuerCountry: "US"}}

	body := decode(t, f.do(http.MethodGet, "/api/lookup?q=AAPL", "john"))
	require.EqualValues(t, 1, body["status"])
	ds := body["datasets"].([]interface{})
	require.Len(t, ds, 1)
	hit := ds[0].(map[string]interface{})
	require.Equal(t, "211", hit["symbol"])
	require.Equal(t, "AAPL:xnas", hit["code"])
	require.Equal(t, "tok-john", f.search.tok)

	f.search.hits, f.search.err = nil, errors.New("boom")
	body = decode(t, f.do(http.MethodGet, "/api/lookup?q=AAPL", "john"))
	require.Empty(t, body["datasets"])
	require.NotNil(t, body["datasets"])
}

func TestLookupOptionsAndInstruments(t *testing.T) {
	f := newFixture()
	body := decode(t, f.do(http.MethodGet, "/api/lookup/options", "john"))
	opts := body["options"].(map[string]interface{})
	require.Equal(t, []interface{}{"Search by code & name"}, opts["searchbys"])
	require.Len(t, opts["types"], len(saxo.AssetTypes))
	require.Len(t, saxo.AssetTypes, 60)
	require.Equal(t, "", saxo.AssetTypes[0])

	body = decode(t, f.do(http.MethodGet, "/api/instruments", "john"))
	require.EqualValues(t, 1, body["status"])
	require.Empty(t, body["instruments"])
}

func TestHistoryStreamsBatches(t *testing.T) {
	f := newFixture()
	f.walker.batches = []models.BarBatch{
		{Status: 1, Symbol: "21", Bars: []models.Bar{{Datetime: "2024-01-02 00:00:00.000", Open: 1}}},
		{Status: 1, LastDataSet: 1, Symbol: "21", Bars: []models.Bar{}},
	}

	rec := f.do(http.MethodGet, "/api/history?symbol=21&type=FxSpot&period=week&start=2024-01-01&end=2024-02-01", "john")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `"last_data_set":0`)
	require.Contains(t, body, `"last_data_set":1`)
	require.Equal(t, "\r\n", body[len(body)-2:])

	q := f.walker.got
	require.Equal(t, "week", q.Period)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), q.Start)
	require.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), q.End)
}

func TestHistoryValidation(t *testing.T) {
	f := newFixture()
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history?symbol=21&period=5min&start=2024-01-01&end=2024-02-01", "john").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history?symbol=21&start=01/01/2024&end=2024-02-01", "john").Code)
	require.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/api/history?start=2024-01-01&end=2024-02-01", "john").Code)

	rec := f.do(http.MethodGet, "/api/history?symbol=21&start=2024-01-01&end=2024-02-01", "john")
	require.Equal(t, "day", f.walker.got.Period)
	require.Equal(t, http.StatusOK, rec.Code)

	f.walker.err = models.ErrNotFound
	require.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/history?code=NOPE&start=2024-01-01&end=2024-02-01", "john").Code)
}
