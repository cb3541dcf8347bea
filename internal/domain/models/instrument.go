package models

// Instrument identifies a streamable upstream instrument. Symbol holds the
// provider-native id (Saxo UIC) and Code the human readable ticker.
type Instrument struct {
	Symbol string `json:"symbol"`
	Code   string `json:"code"`
	Type   string `json:"type"`
}

// Subscription is one tracked upstream price subscription.
type Subscription struct {
	ReferenceID string
	Instrument  Instrument
}

// InstrumentSummary is one search hit returned to the lookup dialog.
type InstrumentSummary struct {
	Symbol      string `json:"symbol"`
	Exchange    string `json:"exchange"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Code        string `json:"code"`
	Currency    string `json:"currency"`
	Country     string `json:"country"`
}
