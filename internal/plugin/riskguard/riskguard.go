// Package riskguard is a compiled-in plugin entry point that flattens every open
// position once an account's wallet balance falls too far below its peak.
package riskguard

import (
	"context"
	"fmt"
	"sync"

	"github.com/creasty/defaults"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"Detector/internal/domain/models"
	"Detector/internal/plugin"
)

// Entrypoint is the name bundles use to select this plugin.
const Entrypoint = "risk-guard"

type Options struct {
	Asset              string  `yaml:"asset" default:"USDT"`
	MaxDrawdownPercent float64 `yaml:"max_drawdown_percent" default:"20"`
}

// Guard tracks the peak balance per account route.
type Guard struct {
	plugin.Base

	opts Options

	mu      sync.Mutex
	peak    map[models.Route]decimal.Decimal
	tripped map[models.Route]bool
}

// Register binds the entry point on l.
func Register(l *plugin.Loader) {
	l.RegisterEntrypoint(Entrypoint, Init)
}

// Init is the plugin.InitFunc for the guard.
func Init(_ context.Context, _ plugin.Host, meta models.PluginMeta, raw map[string]any) (plugin.Plugin, error) {
	opts, err := parseOptions(raw)
	if err != nil {
		return nil, err
	}
	return New(meta, opts), nil
}

func New(meta models.PluginMeta, opts Options) *Guard {
	if meta.Name == "" {
		meta.Name = Entrypoint
	}
	return &Guard{
		Base:    plugin.Base{PluginMeta: meta},
		opts:    opts,
		peak:    make(map[models.Route]decimal.Decimal),
		tripped: make(map[models.Route]bool),
	}
}

func parseOptions(raw map[string]any) (Options, error) {
	var o Options
	if err := defaults.Set(&o); err != nil {
		return o, fmt.Errorf("risk guard defaults: %w", err)
	}
	if len(raw) > 0 {
		b, err := yaml.Marshal(raw)
		if err != nil {
			return o, fmt.Errorf("risk guard options: %w", err)
		}
		if err := yaml.Unmarshal(b, &o); err != nil {
			return o, fmt.Errorf("risk guard options: %w", err)
		}
	}
	if o.MaxDrawdownPercent <= 0 || o.MaxDrawdownPercent > 100 {
		return o, fmt.Errorf("risk guard: max_drawdown_percent must be in (0, 100], got %v", o.MaxDrawdownPercent)
	}
	return o, nil
}

// OnAfterAccountUpdate closes all positions when the drawdown from the peak
// reaches the configured limit. It fires once per breach and re-arms when the
// balance makes a new peak.
func (g *Guard) OnAfterAccountUpdate(ctx context.Context, pc *plugin.Context, account models.Account) error {
	asset, ok := account.Asset(g.opts.Asset)
	if !ok {
		return nil
	}
	if !g.breached(account.Key(), decimal.NewFromFloat(asset.WalletBalance)) {
		return nil
	}
	if pc == nil || pc.Detector == nil {
		return nil
	}
	if _, err := pc.Detector.CloseAll(ctx); err != nil {
		return fmt.Errorf("risk guard close all: %w", err)
	}
	return nil
}

func (g *Guard) breached(route models.Route, balance decimal.Decimal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	peak, seen := g.peak[route]
	if !seen || balance.GreaterThan(peak) {
		g.peak[route] = balance
		g.tripped[route] = false
		return false
	}
	if peak.IsZero() || g.tripped[route] {
		return false
	}
	drawdown := peak.Sub(balance).Div(peak).Mul(decimal.NewFromInt(100))
	if drawdown.LessThan(decimal.NewFromFloat(g.opts.MaxDrawdownPercent)) {
		return false
	}
	g.tripped[route] = true
	return true
}
