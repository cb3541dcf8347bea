package models

// Bar is one history bar in the downstream format.
type Bar struct {
	Datetime string  `json:"datetime"`
	Open     float64 `json:"open"`
	High     float64 `json:"high"`
	Low      float64 `json:"low"`
	Close    float64 `json:"close"`
	Volume   float64 `json:"volume"`
	OI       float64 `json:"oi"`
}

// BarBatch is one flushed page of a history walk.
type BarBatch struct {
	Status      int    `json:"status"`
	LastDataSet int    `json:"last_data_set"`
	Symbol      string `json:"symbol"`
	Code        string `json:"code"`
	Bars        []Bar  `json:"bars"`
}

// Last reports whether this batch terminates the walk.
func (b BarBatch) Last() bool { return b.LastDataSet == 1 }
