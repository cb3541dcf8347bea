package saxo

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/pkg/util"
)

const (
	chartCount     = 1000
	maxSearchPages = 50
)

// API issues the upstream calls the bridge needs.
type API struct {
	rest      repository.UpstreamREST
	endpoints Endpoints
}

func NewAPI(rest repository.UpstreamREST, endpoints Endpoints) *API {
	return &API{rest: rest, endpoints: endpoints}
}

// StreamURL is the websocket connect URL for a context.
func (a *API) StreamURL(token, contextID string) string {
	return a.endpoints.StreamURL(token, contextID)
}

type subscriptionArguments struct {
	AssetType   string   `json:"AssetType"`
	Uic         int64    `json:"Uic"`
	FieldGroups []string `json:"FieldGroups"`
}

type subscriptionRequest struct {
	Arguments   subscriptionArguments `json:"Arguments"`
	ContextID   string                `json:"ContextId"`
	ReferenceID string                `json:"ReferenceId"`
}

// Subscribe creates a price subscription on a streaming context.
func (a *API) Subscribe(ctx context.Context, token, contextID, referenceID string, inst models.Instrument) error {
	uic, err := strconv.ParseInt(inst.Symbol, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: instrument id %q is not numeric", models.ErrInvalidRequest, inst.Symbol)
	}
	body := subscriptionRequest{
		Arguments: subscriptionArguments{
			AssetType:   inst.Type,
			Uic:         uic,
			FieldGroups: FieldGroups,
		},
		ContextID:   contextID,
		ReferenceID: referenceID,
	}
	return a.rest.Post(ctx, token, a.endpoints.subscriptionsURL(), body, nil)
}

// Unsubscribe removes one price subscription.
func (a *API) Unsubscribe(ctx context.Context, token, contextID, referenceID string) error {
	return a.rest.Delete(ctx, token, a.endpoints.subscriptionURL(contextID, referenceID))
}

// ExtendSession re-authorizes a live streaming context with a new token.
func (a *API) ExtendSession(ctx context.Context, token, contextID string) error {
	return a.rest.Put(ctx, token, a.endpoints.ExtendURL(contextID), nil, nil)
}

// InstrumentData is one instrument search hit.
type InstrumentData struct {
	Identifier    int64  `json:"Identifier"`
	AssetType     string `json:"AssetType"`
	Symbol        string `json:"Symbol"`
	ExchangeID    string `json:"ExchangeId"`
	Description   string `json:"Description"`
	CurrencyCode  string `json:"CurrencyCode"`
	IssuerCountry string `json:"IssuerCountry"`
}

// Summary converts the hit into the lookup dialog record.
func (d InstrumentData) Summary() models.InstrumentSummary {
	return models.InstrumentSummary{
		Symbol:      strconv.FormatInt(d.Identifier, 10),
		Exchange:    d.ExchangeID,
		Type:        d.AssetType,
		Description: d.Description,
		Code:        d.Symbol,
		Currency:    d.CurrencyCode,
		Country:     d.IssuerCountry,
	}
}

type instrumentPage struct {
	Data []InstrumentData `json:"Data"`
	Next string           `json:"__next"`
}

// SearchInstruments runs a keyword search and follows every result page.
func (a *API) SearchInstruments(ctx context.Context, token, keywords, assetTypes string) ([]InstrumentData, error) {
	q := url.Values{}
	q.Set("AssetTypes", assetTypes)
	q.Set("Keywords", keywords)

	var (
		out  []InstrumentData
		next = a.endpoints.instrumentsURL()
	)
	for page := 0; next != "" && page < maxSearchPages; page++ {
		var p instrumentPage
		if err := a.rest.Get(ctx, token, next, q, &p); err != nil {
			return out, err
		}
		out = append(out, p.Data...)
		next, q = p.Next, nil
	}
	return out, nil
}

// ChartSample is one upstream chart bar. Bid fields are set for FX-like
// instruments that carry no traded prices.
type ChartSample struct {
	Time     time.Time `json:"Time"`
	Open     float64   `json:"Open"`
	High     float64   `json:"High"`
	Low      float64   `json:"Low"`
	Close    float64   `json:"Close"`
	OpenBid  float64   `json:"OpenBid"`
	HighBid  float64   `json:"HighBid"`
	LowBid   float64   `json:"LowBid"`
	CloseBid float64   `json:"CloseBid"`
}

// Bar converts the sample into a downstream bar.
func (s ChartSample) Bar() models.Bar {
	return models.Bar{
		Datetime: s.Time.UTC().Format(util.BarLayout),
		Open:     firstNonZero(s.Open, s.OpenBid),
		High:     firstNonZero(s.High, s.HighBid),
		Low:      firstNonZero(s.Low, s.LowBid),
		Close:    firstNonZero(s.Close, s.CloseBid),
	}
}

func firstNonZero(a, b float64) float64 {
	if a != 0 {
		return a
	}
	return b
}

type chartResponse struct {
	Data []ChartSample `json:"Data"`
}

// Chart returns up to chartCount bars ending at upTo, oldest first.
func (a *API) Chart(ctx context.Context, token, uic, assetType string, horizon int, upTo time.Time) ([]ChartSample, error) {
	q := url.Values{}
	q.Set("AssetType", assetType)
	q.Set("Horizon", strconv.Itoa(horizon))
	q.Set("Uic", uic)
	q.Set("Mode", "UpTo")
	q.Set("Time", util.HTTPTime(upTo))
	q.Set("Count", strconv.Itoa(chartCount))

	var resp chartResponse
	if err := a.rest.Get(ctx, token, a.endpoints.chartURL(), q, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}
