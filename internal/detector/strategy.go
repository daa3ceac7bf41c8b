package detector

import (
	"context"

	"Detector/internal/domain/models"
)

// Strategy is the overridable hook table of a detector. Embed BaseStrategy and
// override only what the strategy reacts to.
type Strategy interface {
	OnInit(ctx context.Context)
	OnTrade(ctx context.Context, trade models.Trade, route models.Route)
	OnCandleUpdate(ctx context.Context, candle models.Candle, route models.Route)
	OnCandleOpen(ctx context.Context, candle models.Candle)
	OnCandleClose(ctx context.Context, candle models.Candle)
	OnOrderBookUpdate(ctx context.Context, book models.OrderBook, route models.Route)
	OnAccountUpdate(ctx context.Context, account models.Account)
	OnOrderOpen(ctx context.Context, order models.Order)
	OnOrderClose(ctx context.Context, order models.Order)
	OnSymbolsUpdate(ctx context.Context, symbols []models.Symbol, route models.Route)
	OnSymbolPricesUpdate(ctx context.Context, prices []models.SymbolPrice, route models.Route)
	OnInspectorRegulation(ctx context.Context, ev models.InspectorEvent)
	OnDispose(ctx context.Context)
}

// StrategyFactory builds a strategy bound to its engine.
type StrategyFactory func(e *Engine) Strategy

// BaseStrategy implements every hook as a no-op.
type BaseStrategy struct{}

func (BaseStrategy) OnInit(context.Context)                                                   {}
func (BaseStrategy) OnTrade(context.Context, models.Trade, models.Route)                      {}
func (BaseStrategy) OnCandleUpdate(context.Context, models.Candle, models.Route)              {}
func (BaseStrategy) OnCandleOpen(context.Context, models.Candle)                              {}
func (BaseStrategy) OnCandleClose(context.Context, models.Candle)                             {}
func (BaseStrategy) OnOrderBookUpdate(context.Context, models.OrderBook, models.Route)        {}
func (BaseStrategy) OnAccountUpdate(context.Context, models.Account)                          {}
func (BaseStrategy) OnOrderOpen(context.Context, models.Order)                                {}
func (BaseStrategy) OnOrderClose(context.Context, models.Order)                               {}
func (BaseStrategy) OnSymbolsUpdate(context.Context, []models.Symbol, models.Route)           {}
func (BaseStrategy) OnSymbolPricesUpdate(context.Context, []models.SymbolPrice, models.Route) {}
func (BaseStrategy) OnInspectorRegulation(context.Context, models.InspectorEvent)             {}
func (BaseStrategy) OnDispose(context.Context)                                                {}
