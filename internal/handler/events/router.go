package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"Detector/internal/domain/models"
	domrepo "Detector/internal/domain/repository"
	"Detector/pkg/logger"
)

// ErrMalformedEvent marks payloads that can never be processed.
var ErrMalformedEvent = errors.New("malformed inbound event")

// Router decodes inbound envelopes and hands the typed value to the dispatcher.
type Router struct {
	next    domrepo.EventDispatcher
	metrics domrepo.Metrics
	log     *logger.Logger
}

func NewRouter(next domrepo.EventDispatcher, metrics domrepo.Metrics, log *logger.Logger) *Router {
	if log == nil {
		log = logger.Nop()
	}
	return &Router{next: next, metrics: metrics, log: log.With(logger.String("component", "event_router"))}
}

// Handle decodes raw as an envelope. fallback is used when the envelope does
// not name its own pattern, which is the case for topic-per-pattern transports.
func (r *Router) Handle(ctx context.Context, fallback models.EventPattern, raw []byte) error {
	var env models.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		r.metrics.RecordEventDropped(string(fallback), "decode")
		return fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}
	if env.Pattern == "" {
		env.Pattern = fallback
	}
	return r.Dispatch(ctx, env)
}

// Dispatch routes one decoded envelope. Unknown patterns are logged and skipped.
func (r *Router) Dispatch(ctx context.Context, env models.InboundEnvelope) error {
	route := env.Data.Options
	value := env.Data.Value

	switch env.Pattern {
	case models.PatternTrade:
		var t models.Trade
		if err := r.decode(env.Pattern, value, &t); err != nil {
			return err
		}
		return r.next.OnTrade(ctx, t, route)
	case models.PatternOrderBook:
		var b models.OrderBook
		if err := r.decode(env.Pattern, value, &b); err != nil {
			return err
		}
		return r.next.OnOrderBook(ctx, b, route)
	case models.PatternCandle:
		var c models.Candle
		if err := r.decode(env.Pattern, value, &c); err != nil {
			return err
		}
		return r.next.OnCandle(ctx, c, route)
	case models.PatternAccountEvent:
		var ev models.AccountEvent
		if err := r.decode(env.Pattern, value, &ev); err != nil {
			return err
		}
		if ev.Options.ConnectorType == "" {
			ev.Options.ConnectorType = route.ConnectorType
		}
		if ev.Options.MarketType == "" {
			ev.Options.MarketType = route.MarketType
		}
		return r.next.OnAccountUpdate(ctx, ev)
	case models.PatternOrderCreate:
		var o models.Order
		if err := r.decode(env.Pattern, value, &o); err != nil {
			return err
		}
		return r.next.OnOrderCreate(ctx, o)
	case models.PatternOrderClose:
		var o models.Order
		if err := r.decode(env.Pattern, value, &o); err != nil {
			return err
		}
		return r.next.OnOrderClose(ctx, o)
	case models.PatternSymbols:
		var symbols []models.Symbol
		if err := r.decode(env.Pattern, value, &symbols); err != nil {
			return err
		}
		return r.next.OnSymbolsUpdate(ctx, symbols, route)
	case models.PatternSymbolPrices:
		prices, err := decodePrices(value)
		if err != nil {
			r.metrics.RecordEventDropped(string(env.Pattern), "decode")
			return fmt.Errorf("%w: %s: %w", ErrMalformedEvent, env.Pattern, err)
		}
		return r.next.OnSymbolPricesUpdate(ctx, prices, route)
	case models.PatternInspector:
		var ev models.InspectorEvent
		if err := r.decode(env.Pattern, value, &ev); err != nil {
			return err
		}
		return r.next.OnInspectorRegulation(ctx, ev)
	default:
		r.metrics.RecordEventDropped(string(env.Pattern), "unknown_pattern")
		r.log.Warn("unknown event pattern", logger.String("pattern", string(env.Pattern)))
		return nil
	}
}

func (r *Router) decode(p models.EventPattern, value json.RawMessage, dst any) error {
	if len(value) == 0 {
		r.metrics.RecordEventDropped(string(p), "decode")
		return fmt.Errorf("%w: %s: empty value", ErrMalformedEvent, p)
	}
	if err := json.Unmarshal(value, dst); err != nil {
		r.metrics.RecordEventDropped(string(p), "decode")
		return fmt.Errorf("%w: %s: %w", ErrMalformedEvent, p, err)
	}
	return nil
}

// decodePrices accepts either a list of prices or a single price object.
func decodePrices(value json.RawMessage) ([]models.SymbolPrice, error) {
	if len(value) == 0 {
		return nil, errors.New("empty value")
	}
	var list []models.SymbolPrice
	if err := json.Unmarshal(value, &list); err == nil {
		return list, nil
	}
	var one models.SymbolPrice
	if err := json.Unmarshal(value, &one); err != nil {
		return nil, err
	}
	return []models.SymbolPrice{one}, nil
}
