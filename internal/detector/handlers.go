package detector

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"Detector/internal/domain/models"
	"Detector/internal/plugin"
	"Detector/pkg/logger"
)

// gate is the readiness check every handler runs on entry.
func (e *Engine) gate(kind string) bool {
	if e.IsReady() {
		e.deps.Metrics.RecordEventHandled(kind)
		return true
	}
	e.log.Debug("event skipped: detector not ready",
		logger.String("kind", kind),
		logger.String("state", e.State().String()),
	)
	e.deps.Metrics.RecordEventDropped(kind, "not_ready")
	return false
}

type throttledKey struct{}

// WithTradeHooksThrottled marks ctx so OnTradeHandler only aggregates the trade:
// candles, candle signals and the last price are updated, the trade hooks and
// the tick event are skipped.
func WithTradeHooksThrottled(ctx context.Context) context.Context {
	return context.WithValue(ctx, throttledKey{}, true)
}

// TradeHooksThrottled reports whether ctx carries the throttle mark.
func TradeHooksThrottled(ctx context.Context) bool {
	v, _ := ctx.Value(throttledKey{}).(bool)
	return v
}

// OnTradeHandler folds a trade into candles and runs the trade hooks. The plugin
// onTrade hook and the candle derivation run concurrently; candle close/open
// signals, the strategy hook and onAfterTrade only run once both are done.
func (e *Engine) OnTradeHandler(ctx context.Context, trade models.Trade, route models.Route) error {
	if !e.gate("trade") {
		return nil
	}
	opts := e.Options()
	throttled := TradeHooksThrottled(ctx)

	switch {
	case !opts.IsActive:
		e.rememberTrade(trade)
	case throttled:
		changes := e.candles.UpdateByTrade(trade, opts.Intervals)
		e.signalCandles(ctx, changes, route)
		e.rememberTrade(trade)
	default:
		pc := e.CreatePluginContext(nil)
		var changes []CandleChange

		var g errgroup.Group
		g.Go(func() error {
			e.reduce(ctx, plugin.HookTrade, pc, trade)
			return nil
		})
		g.Go(func() error {
			changes = e.candles.UpdateByTrade(trade, opts.Intervals)
			return nil
		})
		_ = g.Wait()

		e.signalCandles(ctx, changes, route)
		e.strategy.OnTrade(ctx, trade, route)
		e.rememberTrade(trade)

		e.reduce(ctx, plugin.HookAfterTrade, pc, trade)
	}
	if throttled {
		return nil
	}

	e.emit(ctx, models.EventTickReceived, map[string]any{
		"symbols":  []models.Symbol{{Name: trade.Symbol.Name}},
		"price":    trade.Price,
		"quantity": trade.Volume,
	}, []models.Symbol{{Name: trade.Symbol.Name}})
	return nil
}

func (e *Engine) rememberTrade(trade models.Trade) {
	e.tradesMu.Lock()
	e.lastTrades[trade.Symbol.Name] = trade
	e.lastPrices[trade.Symbol.Name] = trade.Price
	e.tradesMu.Unlock()
	e.deps.Metrics.RecordLastPrice(trade.Symbol.Name, trade.Price)
}

// signalCandles fires update hooks, or close before open on a boundary crossing.
func (e *Engine) signalCandles(ctx context.Context, changes []CandleChange, route models.Route) {
	for _, ch := range changes {
		switch ch.Status {
		case models.CandleUpdate:
			e.candleUpdated(ctx, ch.Candle, route)
		case models.CandleCreate:
			if ch.Closed != nil {
				e.candleClosed(ctx, *ch.Closed)
			}
			e.candleOpened(ctx, ch.Candle)
		}
	}
}

func (e *Engine) candleUpdated(ctx context.Context, c models.Candle, route models.Route) {
	e.reduce(ctx, plugin.HookCandleUpdate, nil, c)
	e.strategy.OnCandleUpdate(ctx, c, route)
	e.reduce(ctx, plugin.HookAfterCandleUpdate, nil, c)
}

func (e *Engine) candleClosed(ctx context.Context, c models.Candle) {
	e.reduce(ctx, plugin.HookCandleClose, nil, c)
	e.strategy.OnCandleClose(ctx, c)
	e.reduce(ctx, plugin.HookAfterCandleClose, nil, c)
	if e.deps.Archive != nil {
		if err := e.deps.Archive.StoreCandle(ctx, c); err != nil {
			e.log.Warn("candle archive failed",
				logger.String("symbol", c.Symbol.Name),
				logger.String("interval", string(c.Interval)),
				logger.Error(err),
			)
			e.deps.Metrics.RecordError("archive")
		}
	}
}

func (e *Engine) candleOpened(ctx context.Context, c models.Candle) {
	e.reduce(ctx, plugin.HookCandleOpen, nil, c)
	e.strategy.OnCandleOpen(ctx, c)
	e.reduce(ctx, plugin.HookAfterCandleOpen, nil, c)
}

// OnCandleHandler takes a candle pushed by a provider: it overwrites the open
// candle of the matching series and runs the candle-update hooks.
func (e *Engine) OnCandleHandler(ctx context.Context, candle models.Candle, route models.Route) error {
	if !e.gate("candle") {
		return nil
	}
	e.candles.CloseCandle(candle)
	if !e.Options().IsActive {
		return nil
	}
	e.candleUpdated(ctx, candle, route)
	return nil
}

// OnOrderBookUpdateHandler wraps the strategy hook with the order book plugin hooks.
func (e *Engine) OnOrderBookUpdateHandler(ctx context.Context, book models.OrderBook, route models.Route) error {
	if !e.gate("orderbook") {
		return nil
	}
	if !e.Options().IsActive {
		return nil
	}
	e.reduce(ctx, plugin.HookOrderBookUpdate, nil, book)
	e.strategy.OnOrderBookUpdate(ctx, book, route)
	e.reduce(ctx, plugin.HookAfterOrderBookUpdate, nil, book)
	return nil
}

// OnAccountUpdateHandler reconciles an account notification for every provider's
// first active connector. Cancelled or expired known orders are dropped locally;
// anything else triggers a fresh snapshot that is run through the hooks and merged.
func (e *Engine) OnAccountUpdateHandler(ctx context.Context, ev models.AccountEvent) error {
	if !e.gate("account") {
		return nil
	}
	for _, p := range e.Options().Providers {
		active := p.ActiveConnectors()
		if len(active) == 0 {
			continue
		}
		connector := active[0]
		key := models.Route{ConnectorType: connector.ConnectorType, MarketType: ev.Options.MarketType}
		if _, ok := e.accounts.Get(key); !ok {
			continue
		}

		if ev.EventType == models.AccountEventOrderTradeUpdate && e.accounts.HasOrder(key, ev.Options.OrderID) {
			switch ev.Options.OrderStatus {
			case models.OrderCanceled, models.OrderExpired:
				e.accounts.RemoveOrder(key, ev.Options.OrderID)
				e.log.Info("order removed from account",
					logger.String("order", ev.Options.OrderID),
					logger.String("status", string(ev.Options.OrderStatus)),
				)
			}
			continue
		}

		if !p.HasValidURL() {
			continue
		}
		updated, err := e.deps.Connector.GetAccount(ctx, p.RestAPIURL, connector.ConnectorType, ev.Options.MarketType)
		if err != nil {
			e.log.Warn("account refresh failed",
				logger.String("provider", p.Key),
				logger.String("connector", string(connector.ConnectorType)),
				logger.String("market", string(ev.Options.MarketType)),
				logger.Error(err),
			)
			e.deps.Metrics.RecordError("account")
			continue
		}
		if updated == nil {
			continue
		}
		if updated.ConnectorType == "" {
			updated.ConnectorType = connector.ConnectorType
		}
		if updated.MarketType == "" {
			updated.MarketType = ev.Options.MarketType
		}

		pc := e.CreatePluginContext(updated)
		e.reduce(ctx, plugin.HookAccountUpdate, pc, *updated)
		e.strategy.OnAccountUpdate(ctx, *updated)
		e.reduce(ctx, plugin.HookAfterAccountUpdate, pc, *updated)
		e.accounts.Update(*updated)
	}
	return nil
}

// OnOrderCreateHandler runs the order-open hooks and emits ORDER_PLACED.
func (e *Engine) OnOrderCreateHandler(ctx context.Context, order models.Order) error {
	if !e.gate("order_create") {
		return nil
	}
	pc := e.orderContext(order)
	e.reduce(ctx, plugin.HookOrderOpen, pc, order)
	e.strategy.OnOrderOpen(ctx, order)
	e.reduce(ctx, plugin.HookAfterOrderOpen, pc, order)

	e.emit(ctx, models.EventOrderPlaced, map[string]any{"order": order}, orderSymbols(order))
	return nil
}

// OnOrderCloseHandler runs the order-close hooks and emits ORDER_FILLED.
func (e *Engine) OnOrderCloseHandler(ctx context.Context, order models.Order) error {
	if !e.gate("order_close") {
		return nil
	}
	pc := e.orderContext(order)
	e.reduce(ctx, plugin.HookOrderClose, pc, order)
	e.strategy.OnOrderClose(ctx, order)
	e.reduce(ctx, plugin.HookAfterOrderClose, pc, order)

	e.emit(ctx, models.EventOrderFilled, map[string]any{"order": order}, orderSymbols(order))
	return nil
}

func (e *Engine) orderContext(order models.Order) *plugin.Context {
	if acc, ok := e.Account(order.ConnectorType, order.MarketType); ok {
		return e.CreatePluginContext(&acc)
	}
	return e.CreatePluginContext(nil)
}

func orderSymbols(order models.Order) []models.Symbol {
	if order.Symbol.Name == "" {
		return []models.Symbol{}
	}
	return []models.Symbol{{Name: order.Symbol.Name}}
}

// OnSymbolsUpdateHandler forwards a venue symbol list to the strategy.
func (e *Engine) OnSymbolsUpdateHandler(ctx context.Context, symbols []models.Symbol, route models.Route) error {
	if !e.gate("symbols") {
		return nil
	}
	e.strategy.OnSymbolsUpdate(ctx, symbols, route)
	return nil
}

// OnSymbolPricesUpdateHandler records last prices and forwards them to the strategy.
func (e *Engine) OnSymbolPricesUpdateHandler(ctx context.Context, prices []models.SymbolPrice, route models.Route) error {
	if !e.gate("symbol_prices") {
		return nil
	}
	e.tradesMu.Lock()
	for _, p := range prices {
		e.lastPrices[p.Symbol.Name] = p.Price
	}
	e.tradesMu.Unlock()
	e.strategy.OnSymbolPricesUpdate(ctx, prices, route)
	return nil
}

// OnInspectorRegulationHandler blocks this detector when the regulation targets
// its sysname and reports ErrForbiddenOperation. Other regulations only run hooks.
func (e *Engine) OnInspectorRegulationHandler(ctx context.Context, ev models.InspectorEvent) error {
	if !e.gate("inspector") {
		return nil
	}
	e.reduce(ctx, plugin.HookInspectorRegulation, nil, ev)
	e.strategy.OnInspectorRegulation(ctx, ev)

	if ev.Sysname != "" && ev.Sysname == e.Sysname() {
		e.mutateOptions(func(o *models.DetectorConfig) {
			o.IsBlocked = true
			o.IsActive = false
		})
		e.log.Warn("detector blocked by inspector", logger.Any("payload", ev.Payload))
		return fmt.Errorf("detector %s is blocked: %w", ev.Sysname, models.ErrForbiddenOperation)
	}

	e.reduce(ctx, plugin.HookAfterInspectorRegulation, nil, ev)
	return nil
}
