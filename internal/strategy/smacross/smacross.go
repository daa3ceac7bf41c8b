// Package smacross is a moving-average crossover strategy. It goes long when
// the fast average of closed candles crosses above the slow one and exits on
// the opposite cross or when the trailing stop is hit.
package smacross

import (
	"context"

	"Detector/internal/detector"
	"Detector/internal/domain/models"
	"Detector/internal/strategy"
	"Detector/pkg/logger"
)

const Name = "SmaCross"

type Params struct {
	Fast     int              `yaml:"fast" default:"9"`
	Slow     int              `yaml:"slow" default:"21"`
	Interval models.Timeframe `yaml:"interval" default:"1m"`
	// Quantity is used when the symbol has no configured default size.
	Quantity float64  `yaml:"quantity" default:"1"`
	Symbols  []string `yaml:"symbols" default:"[\"BTCUSDT\"]"`
}

type Strategy struct {
	detector.BaseStrategy

	e      *detector.Engine
	params Params
	// last sign of fast-slow per symbol
	trend map[string]int
}

// Factory returns a factory bound to params.
func Factory(params Params) detector.StrategyFactory {
	return func(e *detector.Engine) detector.Strategy {
		return &Strategy{e: e, params: params, trend: make(map[string]int)}
	}
}

// Definition registers the strategy with its compiled-in configuration.
func Definition(params Params) strategy.Definition {
	return strategy.Definition{
		Name:    Name,
		Factory: Factory(params),
		Config: func() (models.DetectorConfig, error) {
			symbols := make([]models.Symbol, 0, len(params.Symbols))
			for _, name := range params.Symbols {
				symbols = append(symbols, models.Symbol{Name: name})
			}
			return models.DetectorConfig{
				Sysname:        Name,
				IsActive:       true,
				PreloadHistory: true,
				Currency:       "USDT",
				Symbols:        symbols,
				Intervals:      []models.Timeframe{params.Interval},
				TradeSettings:  models.TradeSettings{MaxPositionSizePercent: 10},
			}, nil
		},
	}
}

func (s *Strategy) OnInit(context.Context) {
	s.e.Logger().Info("sma cross ready",
		logger.Int("fast", s.params.Fast),
		logger.Int("slow", s.params.Slow),
		logger.String("interval", string(s.params.Interval)),
	)
}

func (s *Strategy) OnCandleClose(ctx context.Context, c models.Candle) {
	if c.Interval != s.params.Interval || s.params.Fast <= 0 || s.params.Slow <= s.params.Fast {
		return
	}
	closes := s.closes(c)
	if len(closes) < s.params.Slow {
		return
	}
	fast := sma(closes[len(closes)-s.params.Fast:])
	slow := sma(closes[len(closes)-s.params.Slow:])

	s.e.UpsertIndicator(ctx, c.Symbol, c.Interval, "sma_fast", fast, map[string]any{"period": s.params.Fast})
	s.e.UpsertIndicator(ctx, c.Symbol, c.Interval, "sma_slow", slow, map[string]any{"period": s.params.Slow})

	sign := 0
	switch {
	case fast > slow:
		sign = 1
	case fast < slow:
		sign = -1
	}
	prev, seen := s.trend[c.Symbol.Name]
	s.trend[c.Symbol.Name] = sign
	if !seen || sign == prev || sign == 0 {
		return
	}

	pos, open := s.e.Position(c.Symbol.Name)
	switch {
	case sign > 0 && !open:
		s.enter(ctx, c)
	case sign < 0 && open:
		s.exit(ctx, pos, c.Close)
	}
}

func (s *Strategy) OnTrade(ctx context.Context, t models.Trade, _ models.Route) {
	pos, ok := s.e.Position(t.Symbol.Name)
	if !ok {
		return
	}
	if pos.StopLoss > 0 && stopHit(pos, t.Price) {
		s.exit(ctx, pos, t.Price)
		return
	}
	if d := s.e.Options().TradeSettings.TrailingStopDistance; d > 0 {
		s.e.UpdateTrailingStop(t.Price, pos, d)
	}
}

func (s *Strategy) enter(ctx context.Context, c models.Candle) {
	accounts := s.e.Accounts()
	if len(accounts) == 0 {
		return
	}
	acc := accounts[0]
	sym := s.symbol(c.Symbol.Name)
	qty := sym.Quantity
	if qty <= 0 {
		qty = s.params.Quantity
	}

	params := detector.OpenPositionParams{
		Symbol:        sym,
		Side:          models.SideLong,
		Quantity:      qty,
		Price:         c.Close,
		ConnectorType: acc.ConnectorType,
		MarketType:    acc.MarketType,
	}
	if d := s.e.Options().TradeSettings.TrailingStopDistance; d > 0 {
		params.StopLoss = c.Close - d
	}
	if _, err := s.e.OpenPosition(ctx, params); err != nil {
		s.e.Logger().Warn("sma cross entry failed", logger.String("symbol", sym.Name), logger.Error(err))
	}
}

func (s *Strategy) exit(ctx context.Context, pos models.Position, price float64) {
	_, err := s.e.ClosePosition(ctx, detector.ClosePositionParams{
		Position:      pos,
		ConnectorType: pos.ConnectorType,
		MarketType:    pos.MarketType,
		Price:         price,
	})
	if err != nil {
		s.e.Logger().Warn("sma cross exit failed", logger.String("symbol", pos.Symbol.Name), logger.Error(err))
	}
}

func (s *Strategy) symbol(name string) models.Symbol {
	for _, sym := range s.e.Options().Symbols {
		if sym.Name == name {
			return sym
		}
	}
	return models.Symbol{Name: name}
}

// closes returns close prices up to and including c, oldest first.
func (s *Strategy) closes(c models.Candle) []float64 {
	series := s.e.SymbolCandles(c.Symbol.Name, c.Interval, false)
	out := make([]float64, 0, len(series)+1)
	seenClosed := false
	for _, k := range series {
		if k.Time > c.Time {
			continue
		}
		if k.Time == c.Time {
			seenClosed = true
			k = c
		}
		out = append(out, k.Close)
	}
	if !seenClosed {
		out = append(out, c.Close)
	}
	return out
}

func sma(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stopHit(p models.Position, price float64) bool {
	if p.Side == models.SideShort {
		return price >= p.StopLoss
	}
	return price <= p.StopLoss
}
