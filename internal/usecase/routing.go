package usecase

import (
	"context"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	domrepo "Detector/internal/domain/repository"
)

var _ domrepo.EventDispatcher = (*DetectorManager)(nil)

// engineFor returns the active engine or records a drop for kind.
func (m *DetectorManager) engineFor(kind string) *detector.Engine {
	e := m.active.Load()
	if e == nil {
		m.metrics.RecordEventDropped(kind, "no_active_detector")
	}
	return e
}

func (m *DetectorManager) OnTrade(ctx context.Context, trade models.Trade, route models.Route) error {
	if e := m.engineFor("trade"); e != nil {
		return e.OnTradeHandler(ctx, trade, route)
	}
	return nil
}

func (m *DetectorManager) OnOrderBook(ctx context.Context, book models.OrderBook, route models.Route) error {
	if e := m.engineFor("orderbook"); e != nil {
		return e.OnOrderBookUpdateHandler(ctx, book, route)
	}
	return nil
}

func (m *DetectorManager) OnCandle(ctx context.Context, candle models.Candle, route models.Route) error {
	if e := m.engineFor("candle"); e != nil {
		return e.OnCandleHandler(ctx, candle, route)
	}
	return nil
}

func (m *DetectorManager) OnAccountUpdate(ctx context.Context, ev models.AccountEvent) error {
	if e := m.engineFor("account"); e != nil {
		return e.OnAccountUpdateHandler(ctx, ev)
	}
	return nil
}

func (m *DetectorManager) OnOrderCreate(ctx context.Context, order models.Order) error {
	if e := m.engineFor("order_create"); e != nil {
		return e.OnOrderCreateHandler(ctx, order)
	}
	return nil
}

func (m *DetectorManager) OnOrderClose(ctx context.Context, order models.Order) error {
	if e := m.engineFor("order_close"); e != nil {
		return e.OnOrderCloseHandler(ctx, order)
	}
	return nil
}

func (m *DetectorManager) OnSymbolsUpdate(ctx context.Context, symbols []models.Symbol, route models.Route) error {
	if e := m.engineFor("symbols"); e != nil {
		return e.OnSymbolsUpdateHandler(ctx, symbols, route)
	}
	return nil
}

func (m *DetectorManager) OnSymbolPricesUpdate(ctx context.Context, prices []models.SymbolPrice, route models.Route) error {
	if e := m.engineFor("symbol_prices"); e != nil {
		return e.OnSymbolPricesUpdateHandler(ctx, prices, route)
	}
	return nil
}

func (m *DetectorManager) OnInspectorRegulation(ctx context.Context, ev models.InspectorEvent) error {
	if e := m.engineFor("inspector"); e != nil {
		return e.OnInspectorRegulationHandler(ctx, ev)
	}
	return nil
}
