package models

// Trade is an executed tick. Time is unix milliseconds.
type Trade struct {
	Symbol Symbol  `json:"symbol"`
	Price  float64 `json:"price" validate:"gt=0"`
	Volume float64 `json:"volume" validate:"gte=0"`
	Time   int64   `json:"time" validate:"gt=0"`
	Side   string  `json:"side,omitempty"`
}

type OrderBookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

type OrderBook struct {
	Symbol Symbol           `json:"symbol"`
	Time   int64            `json:"time"`
	Bids   []OrderBookLevel `json:"bids"`
	Asks   []OrderBookLevel `json:"asks"`
}

type SymbolPrice struct {
	Symbol Symbol  `json:"symbol"`
	Price  float64 `json:"price"`
}

// InspectorEvent asks the detector named Sysname to stop trading.
type InspectorEvent struct {
	Sysname string         `json:"detectorSysname"`
	Payload map[string]any `json:"opt,omitempty"`
}
