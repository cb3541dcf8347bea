package normalizer

import (
	"fmt"

	json "github.com/goccy/go-json"

	"SaxoBridge/internal/domain/models"
	"SaxoBridge/internal/domain/repository"
	"SaxoBridge/pkg/logger"
	"SaxoBridge/pkg/util"
)

// Control is the meaning of a reserved reference id.
type Control int

const (
	ControlNone Control = iota
	ControlHeartbeat
	ControlResetSubscriptions
	ControlDisconnect
)

func (c Control) String() string {
	switch c {
	case ControlHeartbeat:
		return "heartbeat"
	case ControlResetSubscriptions:
		return "reset_subscriptions"
	case ControlDisconnect:
		return "disconnect"
	}
	return "none"
}

// Teardown reports whether the control ends the streaming context.
func (c Control) Teardown() bool {
	return c == ControlResetSubscriptions || c == ControlDisconnect
}

// Classify maps a reference id onto a control signal.
func Classify(referenceID string) Control {
	switch referenceID {
	case "_heartbeat":
		return ControlHeartbeat
	case "_resetsubscriptions":
		return ControlResetSubscriptions
	case "_disconnect":
		return ControlDisconnect
	}
	return ControlNone
}

// SymbolFromReferenceID returns the instrument id encoded in front of the
// first '-' of a reference id.
func SymbolFromReferenceID(referenceID string) string {
	return util.Before(referenceID, "-")
}

type quote struct {
	Bid     *float64 `json:"Bid"`
	Ask     *float64 `json:"Ask"`
	BidSize *float64 `json:"BidSize"`
	AskSize *float64 `json:"AskSize"`
}

type priceInfoDetails struct {
	LastTraded     *float64 `json:"LastTraded"`
	LastTradedSize *float64 `json:"LastTradedSize"`
	Volume         *float64 `json:"Volume"`
	Open           *float64 `json:"Open"`
	LastClose      *float64 `json:"LastClose"`
}

type priceInfo struct {
	High *float64 `json:"High"`
	Low  *float64 `json:"Low"`
}

type timestamps struct {
	BidTime              string `json:"BidTime"`
	AskTime              string `json:"AskTime"`
	LastTradedVolumeTime string `json:"LastTradedVolumeTime"`
}

type pricePayload struct {
	LastUpdated      string            `json:"LastUpdated"`
	Quote            *quote            `json:"Quote"`
	PriceInfoDetails *priceInfoDetails `json:"PriceInfoDetails"`
	PriceInfo        *priceInfo        `json:"PriceInfo"`
	Timestamps       *timestamps       `json:"Timestamps"`
}

func (p *pricePayload) updated() string {
	if p.LastUpdated != "" {
		return p.LastUpdated
	}
	if ts := p.Timestamps; ts != nil {
		switch {
		case ts.BidTime != "":
			return ts.BidTime
		case ts.AskTime != "":
			return ts.AskTime
		case ts.LastTradedVolumeTime != "":
			return ts.LastTradedVolumeTime
		}
	}
	return ""
}

// Normalizer maps price payloads onto downstream ticks.
type Normalizer struct {
	logger  *logger.Logger
	metrics repository.Metrics
}

func New(l *logger.Logger, m repository.Metrics) *Normalizer {
	return &Normalizer{logger: l, metrics: m}
}

// Normalize emits one tick per field group present in msg: a quote for
// Quote, a trade for PriceInfoDetails and a snapshot when PriceInfo
// accompanies PriceInfoDetails. code is copied onto every tick.
func (n *Normalizer) Normalize(msg models.UpstreamMessage, code string) ([]*models.Tick, error) {
	var p pricePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		return nil, fmt.Errorf("%w: price payload for %s: %v", models.ErrProtocolDecode, msg.ReferenceID, err)
	}

	updated := p.updated()
	if updated == "" && (p.Quote != nil || p.PriceInfoDetails != nil) {
		n.logger.Warn("price update without timestamp",
			logger.String("reference_id", msg.ReferenceID),
			logger.Uint64("message_id", msg.MessageID))
		if n.metrics != nil {
			n.metrics.RecordError("tick_undated")
		}
	}

	base := models.Tick{
		Status:   1,
		Symbol:   SymbolFromReferenceID(msg.ReferenceID),
		Code:     code,
		Datetime: util.CanonicalDatetime(updated),
	}

	var ticks []*models.Tick
	if q := p.Quote; q != nil {
		t := base
		t.Kind = models.KindQuote
		t.Bid = nonZero(q.Bid)
		t.Ask = nonZero(q.Ask)
		t.BidSize = nonZero(q.BidSize)
		t.AskSize = nonZero(q.AskSize)
		ticks = append(ticks, &t)
	}
	if d := p.PriceInfoDetails; d != nil {
		t := base
		t.Kind = models.KindTrade
		t.Close = nonZero(d.LastTraded)
		t.Size = nonZero(d.LastTradedSize)
		t.Volume = nonZero(d.Volume)
		ticks = append(ticks, &t)

		if pi := p.PriceInfo; pi != nil {
			s := base
			s.Kind = models.KindSnapshot
			s.Open = nonZero(d.Open)
			s.Close = nonZero(d.LastClose)
			s.High = nonZero(pi.High)
			s.Low = nonZero(pi.Low)
			ticks = append(ticks, &s)
		}
	}
	return ticks, nil
}

func nonZero(v *float64) *float64 {
	if v == nil || *v == 0 {
		return nil
	}
	out := *v
	return &out
}
