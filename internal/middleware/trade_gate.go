package middleware

import (
	"context"

	"github.com/go-playground/validator/v10"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	domrepo "Detector/internal/domain/repository"
	"Detector/internal/service/ratelimit"
	"Detector/pkg/logger"
)

// TradeGate sits between the inbound transport and the detector manager.
// Malformed trades are dropped. Valid trades always reach the candle
// aggregator; over the per-symbol rate they are marked so the detector skips
// the trade hooks. Every other event passes through untouched.
type TradeGate struct {
	domrepo.EventDispatcher

	validate *validator.Validate
	limiter  *ratelimit.Limiter
	metrics  domrepo.Metrics
	log      *logger.Logger
	rate     float64
	burst    float64
}

type GateOption func(*TradeGate)

// WithTradeRate sets the per-symbol refill rate and burst of trade hook
// dispatch. A non-positive rate disables throttling.
func WithTradeRate(rate float64, burst int) GateOption {
	return func(g *TradeGate) {
		g.rate = rate
		if burst > 0 {
			g.burst = float64(burst)
		}
	}
}

func WithGateLogger(l *logger.Logger) GateOption {
	return func(g *TradeGate) {
		if l != nil {
			g.log = l
		}
	}
}

// WithLimiter shares a limiter instance; tests use it to control the clock.
func WithLimiter(l *ratelimit.Limiter) GateOption {
	return func(g *TradeGate) {
		if l != nil {
			g.limiter = l
		}
	}
}

func NewTradeGate(next domrepo.EventDispatcher, metrics domrepo.Metrics, opts ...GateOption) *TradeGate {
	g := &TradeGate{
		EventDispatcher: next,
		validate:        validator.New(),
		limiter:         ratelimit.New(),
		metrics:         metrics,
		log:             logger.Nop(),
		burst:           1,
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// OnTrade drops malformed trades and forwards the rest. A drop is not an
// error: redelivering the trade would not change the outcome.
func (g *TradeGate) OnTrade(ctx context.Context, trade models.Trade, route models.Route) error {
	if err := g.validate.Struct(trade); err != nil {
		g.metrics.RecordEventDropped("trade", "invalid")
		g.log.Debug("trade rejected", logger.String("symbol", trade.Symbol.Name), logger.Error(err))
		return nil
	}
	if g.rate > 0 {
		key := string(route.ConnectorType) + "|" + string(route.MarketType) + "|" + trade.Symbol.Name
		if !g.limiter.Allow(key, g.burst, g.rate) {
			g.metrics.RecordEventDropped("trade_hooks", "throttled")
			ctx = detector.WithTradeHooksThrottled(ctx)
		}
	}
	return g.EventDispatcher.OnTrade(ctx, trade, route)
}
