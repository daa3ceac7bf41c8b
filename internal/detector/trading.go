package detector

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/pkg/logger"
)

type OpenPositionParams struct {
	Symbol        models.Symbol
	Side          models.OrderSide
	Quantity      float64
	Price         float64
	StopLoss      float64
	TakeProfit    float64
	ConnectorType models.ConnectorType
	MarketType    models.MarketType
	// ProviderURL defaults to the first valid provider with an active connector of ConnectorType.
	ProviderURL string
}

type ClosePositionParams struct {
	Position      models.Position
	ConnectorType models.ConnectorType
	MarketType    models.MarketType
	// Quantity zero closes the whole position.
	Quantity    float64
	Price       float64
	ProviderURL string
}

// providerURLFor picks the rest url of the first usable provider serving connectorType.
func (e *Engine) providerURLFor(connectorType models.ConnectorType) (string, bool) {
	for _, p := range e.Options().Providers {
		if !p.HasValidURL() {
			continue
		}
		for _, c := range p.ActiveConnectors() {
			if c.ConnectorType == connectorType {
				return p.RestAPIURL, true
			}
		}
	}
	return "", false
}

func (e *Engine) resolveProviderURL(explicit string, connectorType models.ConnectorType) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if url, ok := e.providerURLFor(connectorType); ok {
		return url, nil
	}
	return "", fmt.Errorf("no provider serves connector %s: %w", connectorType, models.ErrUpstreamUnavailable)
}

// OpenPosition places an entry through the order service and records the
// resulting position. One position per symbol: a second one fails with
// ErrDuplicatePosition before any order is sent.
func (e *Engine) OpenPosition(ctx context.Context, params OpenPositionParams) (models.Position, error) {
	acc, ok := e.Account(params.ConnectorType, params.MarketType)
	if !ok {
		return models.Position{}, fmt.Errorf("open %s on %s/%s: %w", params.Symbol.Name, params.ConnectorType, params.MarketType, models.ErrAccountNotFound)
	}
	if _, exists := e.ledger.Get(params.Symbol.Name); exists {
		return models.Position{}, fmt.Errorf("open %s: %w", params.Symbol.Name, models.ErrDuplicatePosition)
	}
	providerURL, err := e.resolveProviderURL(params.ProviderURL, params.ConnectorType)
	if err != nil {
		return models.Position{}, err
	}

	res, err := e.deps.Orders.OpenPosition(ctx, repository.OpenPositionRequest{
		ProviderURL: providerURL,
		Account:     acc,
		Symbol:      params.Symbol,
		Side:        params.Side,
		Quantity:    params.Quantity,
		Price:       params.Price,
		StopLoss:    params.StopLoss,
		TakeProfit:  params.TakeProfit,
	})
	if err != nil {
		return models.Position{}, fmt.Errorf("open %s: %w", params.Symbol.Name, err)
	}

	pos := res.Position
	if pos.Symbol.Name == "" {
		pos.Symbol = params.Symbol
	}
	if pos.ConnectorType == "" {
		pos.ConnectorType = params.ConnectorType
	}
	if pos.MarketType == "" {
		pos.MarketType = params.MarketType
	}
	if pos.OpenedAt == 0 {
		pos.OpenedAt = e.now().UnixMilli()
	}
	if err := e.ledger.Add(pos); err != nil {
		return models.Position{}, err
	}
	if res.Account != nil {
		e.accounts.Update(*res.Account)
	}
	e.log.Info("position opened",
		logger.String("symbol", pos.Symbol.Name),
		logger.String("side", string(pos.Side)),
		logger.Float64("quantity", pos.Quantity),
		logger.Float64("price", pos.EntryPrice),
	)
	return pos, nil
}

// ClosePosition closes all of a position, or part of it when Quantity is below
// the position size. Partial closes shrink the ledger entry in place.
func (e *Engine) ClosePosition(ctx context.Context, params ClosePositionParams) (models.Order, error) {
	acc, ok := e.Account(params.ConnectorType, params.MarketType)
	if !ok {
		return models.Order{}, fmt.Errorf("close %s on %s/%s: %w", params.Position.Symbol.Name, params.ConnectorType, params.MarketType, models.ErrAccountNotFound)
	}
	providerURL, err := e.resolveProviderURL(params.ProviderURL, params.ConnectorType)
	if err != nil {
		return models.Order{}, err
	}

	res, err := e.deps.Orders.ClosePosition(ctx, repository.ClosePositionRequest{
		ProviderURL: providerURL,
		Account:     acc,
		Position:    params.Position,
		Quantity:    params.Quantity,
		Price:       params.Price,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("close %s: %w", params.Position.Symbol.Name, err)
	}

	removed, err := e.ledger.Reduce(params.Position.Symbol.Name, params.Quantity)
	if err != nil {
		e.log.Warn("closed position was not in the ledger", logger.String("symbol", params.Position.Symbol.Name))
	}
	if res.Account != nil {
		e.accounts.Update(*res.Account)
	}
	e.log.Info("position closed",
		logger.String("symbol", params.Position.Symbol.Name),
		logger.Float64("quantity", params.Quantity),
		logger.Bool("removed", removed),
	)
	return res.Order, nil
}

// UpdateTrailingStop asks the order service for a new stop and stores it when it moves.
func (e *Engine) UpdateTrailingStop(lastPrice float64, position models.Position, distance float64) (float64, bool) {
	stop, moved := e.deps.Orders.UpdateTrailingStop(lastPrice, position, distance)
	if !moved {
		return 0, false
	}
	if err := e.ledger.SetStopLoss(position.Symbol.Name, stop); err != nil {
		e.log.Warn("trailing stop for unknown position", logger.String("symbol", position.Symbol.Name))
	}
	return stop, true
}

// CloseAll closes every position in the ledger at the last known price.
func (e *Engine) CloseAll(ctx context.Context) ([]models.Order, error) {
	var (
		orders []models.Order
		errs   []error
	)
	for _, pos := range e.ledger.All() {
		price, _ := e.LastPrice(pos.Symbol.Name)
		order, err := e.ClosePosition(ctx, ClosePositionParams{
			Position:      pos,
			ConnectorType: pos.ConnectorType,
			MarketType:    pos.MarketType,
			Price:         price,
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		orders = append(orders, order)
	}
	return orders, errors.Join(errs...)
}

// ChangeLeverage sets the leverage of symbol on the venue and returns the updated symbol.
func (e *Engine) ChangeLeverage(ctx context.Context, route models.Route, symbol models.Symbol, leverage int) (models.Symbol, error) {
	providerURL, err := e.resolveProviderURL("", route.ConnectorType)
	if err != nil {
		return symbol, err
	}
	if err := e.deps.Connector.ChangeLeverage(ctx, providerURL, route, symbol, leverage); err != nil {
		return symbol, fmt.Errorf("change leverage %s: %w", symbol.Name, err)
	}
	symbol.Leverage = leverage
	return symbol, nil
}

// OpenOrder places a raw order and merges the returned account.
func (e *Engine) OpenOrder(ctx context.Context, order models.Order) (models.Order, error) {
	providerURL, err := e.resolveProviderURL("", order.ConnectorType)
	if err != nil {
		return models.Order{}, err
	}
	res, err := e.deps.Orders.OpenOrder(ctx, repository.OpenOrderRequest{
		ProviderURL:     providerURL,
		Order:           order,
		OpenOrderMoment: e.openOrderMoment.Load(),
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("open order %s: %w", order.Symbol.Name, err)
	}
	if res.Account != nil {
		e.accounts.Update(*res.Account)
	}
	e.openOrderMoment.Store(res.OpenOrderMoment)
	return res.Order, nil
}

// CloseOrder closes a raw order, runs the order-close handler and merges the returned account.
func (e *Engine) CloseOrder(ctx context.Context, order models.Order, closePrice float64) (models.Order, error) {
	providerURL, err := e.resolveProviderURL("", order.ConnectorType)
	if err != nil {
		return models.Order{}, err
	}
	res, err := e.deps.Orders.CloseOrder(ctx, repository.CloseOrderRequest{
		ProviderURL: providerURL,
		Order:       order,
		ClosePrice:  closePrice,
	})
	if err != nil {
		return models.Order{}, fmt.Errorf("close order %s: %w", order.Symbol.Name, err)
	}
	if err := e.OnOrderCloseHandler(ctx, order); err != nil {
		e.log.Warn("order close handler failed", logger.Error(err))
	}
	if res.Account != nil {
		e.accounts.Update(*res.Account)
	}
	return res.Order, nil
}

// IsOpenOrder reports whether any account holds an order on symbol; an empty side matches both.
func (e *Engine) IsOpenOrder(symbol string, side models.OrderSide) bool {
	for _, acc := range e.accounts.All() {
		for _, o := range acc.Orders {
			if o.Symbol.Name == symbol && (side == "" || o.Side == side) {
				return true
			}
		}
	}
	return false
}

// IsOpenPosition reports whether any account holds a position on symbol; an empty side matches both.
func (e *Engine) IsOpenPosition(symbol string, side models.OrderSide) bool {
	for _, acc := range e.accounts.All() {
		for _, p := range acc.Positions {
			if p.Symbol.Name == symbol && (side == "" || p.Side == side) {
				return true
			}
		}
	}
	return false
}

// QuoteAsset is the balance position sizing is measured in.
const QuoteAsset = "USDT"

// GetPermissibleQuantity computes the entry size envelope for symbol at price:
// the balance cap is wallet * maxPositionSizePercent / 100, bounded by the
// available balance, and sizes are whole multiples of the symbol's configured
// default quantity on the account's (connector, market).
func (e *Engine) GetPermissibleQuantity(account models.Account, symbol models.Symbol, price float64, provider models.Provider) models.PermissibleQuantity {
	var res models.PermissibleQuantity
	if len(account.Assets) == 0 && len(account.Positions) == 0 && len(account.Orders) == 0 {
		return res
	}

	var available, wallet decimal.Decimal
	if asset, ok := account.Asset(QuoteAsset); ok {
		available = decimal.NewFromFloat(asset.AvailableBalance)
		wallet = decimal.NewFromFloat(asset.WalletBalance)
	}
	pct := decimal.NewFromFloat(e.Options().TradeSettings.MaxPositionSizePercent)
	res.PermissibleQuantityDefaultPercent = pct.InexactFloat64()

	balanceMax := wallet.Mul(pct).Div(decimal.NewFromInt(100))
	if balanceMax.GreaterThan(available) {
		balanceMax = available
	}
	res.EntryBalanceMax = balanceMax.InexactFloat64()

	defaultQty := decimal.Zero
	for _, c := range provider.Connectors {
		if c.ConnectorType != account.ConnectorType {
			continue
		}
		for _, m := range c.Markets {
			if m.MarketType != account.MarketType {
				continue
			}
			if s, ok := m.FindSymbol(symbol.Name); ok {
				defaultQty = decimal.NewFromFloat(s.Quantity)
			}
			break
		}
		break
	}
	res.EntryQuantityDefault = defaultQty.InexactFloat64()

	balanceDefault := decimal.NewFromFloat(price).Mul(defaultQty)
	res.EntryBalanceDefault = balanceDefault.InexactFloat64()

	if defaultQty.IsPositive() && balanceDefault.LessThanOrEqual(balanceMax) {
		res.Acceptable = true
		res.AcceptableQuantityMin = defaultQty.InexactFloat64()
		if balanceDefault.IsPositive() {
			res.AcceptableQuantityMax = balanceMax.Div(balanceDefault).Floor().Mul(defaultQty).InexactFloat64()
		}
	}
	return res
}
