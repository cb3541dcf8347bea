package models

// TickKind is the downstream record type letter.
type TickKind string

const (
	KindQuote    TickKind = "q"
	KindTrade    TickKind = "t"
	KindSnapshot TickKind = "s"
)

// Tick is the normalized record written to the charting client.
type Tick struct {
	Status   int      `json:"status"`
	Symbol   string   `json:"symbol"`
	Code     string   `json:"code,omitempty"`
	Datetime string   `json:"datetime"`
	Bid      *float64 `json:"bid,omitempty"`
	Ask      *float64 `json:"ask,omitempty"`
	BidSize  *float64 `json:"bidsize,omitempty"`
	AskSize  *float64 `json:"asksize,omitempty"`
	Open     *float64 `json:"open,omitempty"`
	High     *float64 `json:"high,omitempty"`
	Low      *float64 `json:"low,omitempty"`
	Close    *float64 `json:"close,omitempty"`
	Size     *float64 `json:"size,omitempty"`
	Volume   *float64 `json:"volume,omitempty"`
	Kind     TickKind `json:"type"`
}

// Heartbeat is the keepalive line forwarded on upstream heartbeats.
type Heartbeat struct {
	Status    int `json:"status"`
	Heartbeat int `json:"heartbeat"`
}

// NewHeartbeat returns the canonical keepalive record.
func NewHeartbeat() Heartbeat { return Heartbeat{Status: 1, Heartbeat: 1} }
