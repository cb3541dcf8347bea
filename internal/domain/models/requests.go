package models

// HistoryRequest is bound from the /api/history query string.
type HistoryRequest struct {
	Code   string `query:"code"`
	Symbol string `query:"symbol"`
	Type   string `query:"type"`
	Period string `query:"period" default:"day" validate:"oneof=1min day week month"`
	Start  string `query:"start" validate:"required,datetime=2006-01-02"`
	End    string `query:"end" validate:"required,datetime=2006-01-02"`
}

// LookupRequest is bound from the /api/lookup query string.
type LookupRequest struct {
	Query string `query:"q" validate:"required"`
	Type  string `query:"type"`
}

// StreamRequest carries the instrument selection of /api/quotes.
type StreamRequest struct {
	Instruments string `query:"instruments"`
	Symbol      string `query:"symbol"`
	Code        string `query:"code"`
	Type        string `query:"type"`
	NewLine     string `query:"nl"`
}

// CallbackRequest is the OAuth redirect query.
type CallbackRequest struct {
	Code  string `query:"code" validate:"required"`
	State string `query:"state" validate:"required"`
}
