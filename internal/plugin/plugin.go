package plugin

import (
	"context"

	"Detector/internal/domain/models"
)

// Hook names an extension point.
type Hook string

const (
	HookInit                     Hook = "onInit"
	HookStart                    Hook = "onStart"
	HookDispose                  Hook = "onDispose"
	HookTrade                    Hook = "onTrade"
	HookAfterTrade               Hook = "onAfterTrade"
	HookAccountUpdate            Hook = "onAccountUpdate"
	HookAfterAccountUpdate       Hook = "onAfterAccountUpdate"
	HookCandleUpdate             Hook = "onCandleUpdate"
	HookAfterCandleUpdate        Hook = "onAfterCandleUpdate"
	HookCandleOpen               Hook = "onCandleOpen"
	HookAfterCandleOpen          Hook = "onAfterCandleOpen"
	HookCandleClose              Hook = "onCandleClose"
	HookAfterCandleClose         Hook = "onAfterCandleClose"
	HookOrderBookUpdate          Hook = "onOrderBookUpdate"
	HookAfterOrderBookUpdate     Hook = "onAfterOrderBookUpdate"
	HookOrderOpen                Hook = "onOrderOpen"
	HookAfterOrderOpen           Hook = "onAfterOrderOpen"
	HookOrderClose               Hook = "onOrderClose"
	HookAfterOrderClose          Hook = "onAfterOrderClose"
	HookInspectorRegulation      Hook = "onInspectorRegulation"
	HookAfterInspectorRegulation Hook = "onAfterInspectorRegulation"
)

// Plugin is the minimum every extension implements. Hook groups are opt-in through
// the capability interfaces below; Base implements all of them as no-ops.
type Plugin interface {
	Name() string
	Meta() models.PluginMeta
}

type LifecycleHooks interface {
	OnInit(ctx context.Context, pc *Context) error
	OnStart(ctx context.Context, pc *Context) error
	OnDispose(ctx context.Context, pc *Context) error
}

type TradeHooks interface {
	OnTrade(ctx context.Context, pc *Context, trade models.Trade) error
	OnAfterTrade(ctx context.Context, pc *Context, trade models.Trade) error
}

type AccountHooks interface {
	OnAccountUpdate(ctx context.Context, pc *Context, account models.Account) error
	OnAfterAccountUpdate(ctx context.Context, pc *Context, account models.Account) error
}

type CandleHooks interface {
	OnCandleUpdate(ctx context.Context, pc *Context, candle models.Candle) error
	OnAfterCandleUpdate(ctx context.Context, pc *Context, candle models.Candle) error
	OnCandleOpen(ctx context.Context, pc *Context, candle models.Candle) error
	OnAfterCandleOpen(ctx context.Context, pc *Context, candle models.Candle) error
	OnCandleClose(ctx context.Context, pc *Context, candle models.Candle) error
	OnAfterCandleClose(ctx context.Context, pc *Context, candle models.Candle) error
}

type OrderBookHooks interface {
	OnOrderBookUpdate(ctx context.Context, pc *Context, book models.OrderBook) error
	OnAfterOrderBookUpdate(ctx context.Context, pc *Context, book models.OrderBook) error
}

type OrderHooks interface {
	OnOrderOpen(ctx context.Context, pc *Context, order models.Order) error
	OnAfterOrderOpen(ctx context.Context, pc *Context, order models.Order) error
	OnOrderClose(ctx context.Context, pc *Context, order models.Order) error
	OnAfterOrderClose(ctx context.Context, pc *Context, order models.Order) error
}

type InspectorHooks interface {
	OnInspectorRegulation(ctx context.Context, pc *Context, ev models.InspectorEvent) error
	OnAfterInspectorRegulation(ctx context.Context, pc *Context, ev models.InspectorEvent) error
}

// DetectorView is the read-mostly slice of a detector that plugins may touch.
type DetectorView interface {
	Sysname() string
	Options() models.DetectorConfig
	Accounts() []models.Account
	Orders() []models.Order
	SymbolCandles(symbol string, interval models.Timeframe, desc bool) []models.Candle
	CloseAll(ctx context.Context) ([]models.Order, error)
}

// Context is handed to every plugin during one reduction. Values is the shared
// accumulator: a plugin may leave data there for the plugins registered after it.
type Context struct {
	Detector DetectorView
	Account  *models.Account
	Values   map[string]any
	find     func(nameOrGUID string) (Plugin, bool)
}

// NewContext builds a context bound to a detector and, optionally, one account.
func NewContext(d DetectorView, account *models.Account, find func(string) (Plugin, bool)) *Context {
	return &Context{Detector: d, Account: account, Values: map[string]any{}, find: find}
}

// FindPlugin looks up another registered plugin by name or GUID.
func (c *Context) FindPlugin(nameOrGUID string) (Plugin, bool) {
	if c == nil || c.find == nil {
		return nil, false
	}
	return c.find(nameOrGUID)
}

// Base is embedded by plugins that only care about a few hooks.
type Base struct {
	PluginMeta models.PluginMeta
}

func (b Base) Name() string {
	if b.PluginMeta.Name != "" {
		return b.PluginMeta.Name
	}
	return b.PluginMeta.GUID
}

func (b Base) Meta() models.PluginMeta { return b.PluginMeta }

func (Base) OnInit(context.Context, *Context) error    { return nil }
func (Base) OnStart(context.Context, *Context) error   { return nil }
func (Base) OnDispose(context.Context, *Context) error { return nil }

func (Base) OnTrade(context.Context, *Context, models.Trade) error      { return nil }
func (Base) OnAfterTrade(context.Context, *Context, models.Trade) error { return nil }

func (Base) OnAccountUpdate(context.Context, *Context, models.Account) error      { return nil }
func (Base) OnAfterAccountUpdate(context.Context, *Context, models.Account) error { return nil }

func (Base) OnCandleUpdate(context.Context, *Context, models.Candle) error      { return nil }
func (Base) OnAfterCandleUpdate(context.Context, *Context, models.Candle) error { return nil }
func (Base) OnCandleOpen(context.Context, *Context, models.Candle) error        { return nil }
func (Base) OnAfterCandleOpen(context.Context, *Context, models.Candle) error   { return nil }
func (Base) OnCandleClose(context.Context, *Context, models.Candle) error       { return nil }
func (Base) OnAfterCandleClose(context.Context, *Context, models.Candle) error  { return nil }

func (Base) OnOrderBookUpdate(context.Context, *Context, models.OrderBook) error      { return nil }
func (Base) OnAfterOrderBookUpdate(context.Context, *Context, models.OrderBook) error { return nil }

func (Base) OnOrderOpen(context.Context, *Context, models.Order) error       { return nil }
func (Base) OnAfterOrderOpen(context.Context, *Context, models.Order) error  { return nil }
func (Base) OnOrderClose(context.Context, *Context, models.Order) error      { return nil }
func (Base) OnAfterOrderClose(context.Context, *Context, models.Order) error { return nil }

func (Base) OnInspectorRegulation(context.Context, *Context, models.InspectorEvent) error {
	return nil
}

func (Base) OnAfterInspectorRegulation(context.Context, *Context, models.InspectorEvent) error {
	return nil
}
