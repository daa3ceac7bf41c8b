package models

import "encoding/json"

// EventPattern names an inbound event kind.
type EventPattern string

const (
	PatternTrade        EventPattern = "PROVIDER_MARKETDATA_TRADE"
	PatternOrderBook    EventPattern = "PROVIDER_MARKETDATA_ORDERBOOK"
	PatternCandle       EventPattern = "PROVIDER_MARKETDATA_CANDLE"
	PatternAccountEvent EventPattern = "PROVIDER_ACCOUNT_EVENT"
	PatternOrderCreate  EventPattern = "PROVIDER_ORDER_CREATE"
	PatternOrderClose   EventPattern = "PROVIDER_ORDER_CLOSE"
	PatternSymbols      EventPattern = "PROVIDER_SYMBOLS"
	PatternSymbolPrices EventPattern = "PROVIDER_SYMBOL_PRICES"
	PatternInspector    EventPattern = "INSPECTOR_EVENT"
)

// InboundPatterns lists every pattern the detector subscribes to.
var InboundPatterns = []EventPattern{
	PatternTrade,
	PatternOrderBook,
	PatternCandle,
	PatternAccountEvent,
	PatternOrderCreate,
	PatternOrderClose,
	PatternSymbols,
	PatternSymbolPrices,
	PatternInspector,
}

// InboundEnvelope is the transport-neutral wrapper of an inbound event:
// {"pattern": ..., "data": {"value": ..., "options": {...}}}.
type InboundEnvelope struct {
	Pattern EventPattern `json:"pattern"`
	Data    InboundData  `json:"data"`
}

type InboundData struct {
	Value   json.RawMessage `json:"value"`
	Options Route           `json:"options"`
}

// DetectorEventType names an outbound domain event.
type DetectorEventType string

const (
	EventDetectorStarted DetectorEventType = "DETECTOR_STARTED"
	EventDetectorStopped DetectorEventType = "DETECTOR_STOPPED"
	EventTickReceived    DetectorEventType = "TICK_RECEIVED"
	EventOrderPlaced     DetectorEventType = "ORDER_PLACED"
	EventOrderFilled     DetectorEventType = "ORDER_FILLED"
	EventConfigUpdated   DetectorEventType = "CONFIG_UPDATED"
)

// SubscriptionType is the bus channel all detector events go to.
const SubscriptionType = "DETECTOR_EVENT"

// DetectorEvent is the body of one outbound message.
type DetectorEvent struct {
	EventType DetectorEventType `json:"eventType"`
	Payload   map[string]any    `json:"payload"`
	Symbols   []Symbol          `json:"symbols"`
}

// OutboundOptions is the routing metadata attached to each published message.
type OutboundOptions struct {
	ConnectorType ConnectorType `json:"connectorType"`
	MarketType    MarketType    `json:"marketType"`
	Key           string        `json:"key"`
	UpdateMoment  int64         `json:"updateMoment"`
}

// SubscriptionValue is one addressed outbound message.
type SubscriptionValue struct {
	ID      string          `json:"id"`
	Value   DetectorEvent   `json:"value"`
	Options OutboundOptions `json:"options"`
}
