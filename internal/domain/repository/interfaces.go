package repository

import (
	"context"

	"Detector/internal/domain/models"
)

// CandlesQuery selects candle history for one symbol on one (provider, connector, market).
type CandlesQuery struct {
	ProviderURL   string
	ConnectorType models.ConnectorType
	MarketType    models.MarketType
	Symbol        string
	Interval      models.Timeframe
	Limit         int
}

// ConnectorService is the venue topology/account collaborator, addressed by provider REST url.
type ConnectorService interface {
	GetProviderOptions(ctx context.Context, providerURL string) (*models.Provider, error)
	GetAccount(ctx context.Context, providerURL string, connectorType models.ConnectorType, marketType models.MarketType) (*models.Account, error)
	GetCandles(ctx context.Context, q CandlesQuery) ([]models.Candle, error)
	RegisterDetector(ctx context.Context, providerURL string, detector models.DetectorConfig) error
	UpdateDetector(ctx context.Context, providerURL string, detector models.DetectorConfig) error
	ChangeLeverage(ctx context.Context, providerURL string, route models.Route, symbol models.Symbol, leverage int) error
}

type OpenPositionRequest struct {
	ProviderURL string
	Account     models.Account
	Symbol      models.Symbol
	Side        models.OrderSide
	Quantity    float64
	Price       float64
	StopLoss    float64
	TakeProfit  float64
}

type OpenPositionResult struct {
	Position models.Position
	Account  *models.Account
}

type ClosePositionRequest struct {
	ProviderURL string
	Account     models.Account
	Position    models.Position
	Quantity    float64
	Price       float64
}

type ClosePositionResult struct {
	Order   models.Order
	Account *models.Account
}

type OpenOrderRequest struct {
	ProviderURL     string
	Order           models.Order
	OpenOrderMoment int64
}

type OpenOrderResult struct {
	Order           models.Order
	Account         *models.Account
	OpenOrderMoment int64
}

type CloseOrderRequest struct {
	ProviderURL string
	Order       models.Order
	ClosePrice  float64
}

type CloseOrderResult struct {
	Order   models.Order
	Account *models.Account
}

// OrderService is the order-execution collaborator.
type OrderService interface {
	OpenPosition(ctx context.Context, req OpenPositionRequest) (*OpenPositionResult, error)
	ClosePosition(ctx context.Context, req ClosePositionRequest) (*ClosePositionResult, error)
	// UpdateTrailingStop returns the new stop level and true when the stop moves.
	UpdateTrailingStop(lastPrice float64, position models.Position, distance float64) (float64, bool)
	OpenOrder(ctx context.Context, req OpenOrderRequest) (*OpenOrderResult, error)
	CloseOrder(ctx context.Context, req CloseOrderRequest) (*CloseOrderResult, error)
}

// EventPublisher delivers addressed detector events to the message bus.
type EventPublisher interface {
	Publish(ctx context.Context, msg models.SubscriptionValue) error
	Close() error
}

// PluginRegistry is the remote plugin catalogue.
type PluginRegistry interface {
	GetPlugin(ctx context.Context, userID, guid string) (*models.PluginMeta, error)
	ListPlugins(ctx context.Context, userID string) ([]models.PluginMeta, error)
}

// PluginStore remembers which bundles are materialized on disk.
type PluginStore interface {
	Save(ctx context.Context, p models.InstalledPlugin) error
	Get(ctx context.Context, guid string) (*models.InstalledPlugin, error)
	List(ctx context.Context) ([]models.InstalledPlugin, error)
	Delete(ctx context.Context, guid string) error
	Close() error
}

// CandleSink archives closed candles.
type CandleSink interface {
	StoreCandle(ctx context.Context, c models.Candle) error
}

type Metrics interface {
	RecordEventHandled(kind string)
	RecordEventDropped(kind, reason string)
	RecordPublished(eventType string)
	RecordError(kind string)
	RecordHookFailure(hook, plugin string)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
	SetActiveDetector(sysname string)
}

// EventDispatcher receives decoded inbound events. The detector manager
// implements it; transports and gates call into it.
type EventDispatcher interface {
	OnTrade(ctx context.Context, trade models.Trade, route models.Route) error
	OnOrderBook(ctx context.Context, book models.OrderBook, route models.Route) error
	OnCandle(ctx context.Context, candle models.Candle, route models.Route) error
	OnAccountUpdate(ctx context.Context, ev models.AccountEvent) error
	OnOrderCreate(ctx context.Context, order models.Order) error
	OnOrderClose(ctx context.Context, order models.Order) error
	OnSymbolsUpdate(ctx context.Context, symbols []models.Symbol, route models.Route) error
	OnSymbolPricesUpdate(ctx context.Context, prices []models.SymbolPrice, route models.Route) error
	OnInspectorRegulation(ctx context.Context, ev models.InspectorEvent) error
}
