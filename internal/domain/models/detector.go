package models

// DetectorConfig is the effective configuration ("options") of one detector instance.
type DetectorConfig struct {
	Sysname        string          `json:"sysname" yaml:"sysname"`
	Key            string          `json:"key" yaml:"key"`
	IsActive       bool            `json:"isActive" yaml:"is_active"`
	IsBlocked      bool            `json:"isBlocked" yaml:"is_blocked"`
	UseSandbox     bool            `json:"useSandbox" yaml:"use_sandbox"`
	PreloadHistory bool            `json:"preloadHistory" yaml:"preload_history"`
	Currency       string          `json:"currency,omitempty" yaml:"currency" default:"USDT"`
	Providers      []Provider      `json:"providers" yaml:"providers"`
	Symbols        []Symbol        `json:"symbols" yaml:"symbols"`
	Intervals      []Timeframe     `json:"intervals" yaml:"intervals"`
	Orders         []Order         `json:"orders" yaml:"-"`
	Indicators     []string        `json:"indicators,omitempty" yaml:"indicators"`
	Plugins        []PluginBinding `json:"plugins,omitempty" yaml:"plugins"`
	TradeSettings  TradeSettings   `json:"tradeSettings" yaml:"trade_settings"`
}

type TradeSettings struct {
	MaxPositionSizePercent float64 `json:"maxPositionSizePercent" yaml:"max_position_size_percent" default:"10"`
	TrailingStopDistance   float64 `json:"trailingStopDistance,omitempty" yaml:"trailing_stop_distance"`
}

// PluginBinding names a plugin the detector wants registered, by name or GUID.
type PluginBinding struct {
	Name    string         `json:"name" yaml:"name"`
	GUID    string         `json:"guid,omitempty" yaml:"guid"`
	Options map[string]any `json:"options,omitempty" yaml:"options"`
}

// Normalize replaces nil collections with empty ones.
func (c *DetectorConfig) Normalize() {
	if c.Providers == nil {
		c.Providers = []Provider{}
	}
	if c.Symbols == nil {
		c.Symbols = []Symbol{}
	}
	if c.Intervals == nil {
		c.Intervals = []Timeframe{}
	}
	if c.Orders == nil {
		c.Orders = []Order{}
	}
}

// MarketSymbols lists the symbols of every active connector market, first
// occurrence wins on duplicate names.
func (c DetectorConfig) MarketSymbols() []Symbol {
	seen := map[string]bool{}
	out := []Symbol{}
	for _, p := range c.Providers {
		for _, conn := range p.Connectors {
			if !conn.IsActive {
				continue
			}
			for _, m := range conn.Markets {
				for _, s := range m.Symbols {
					if s.Name == "" || seen[s.Name] {
						continue
					}
					seen[s.Name] = true
					out = append(out, s)
				}
			}
		}
	}
	return out
}

// Clone returns a copy whose top-level slices are not shared with c.
func (c DetectorConfig) Clone() DetectorConfig {
	out := c
	out.Providers = append([]Provider(nil), c.Providers...)
	out.Symbols = append([]Symbol(nil), c.Symbols...)
	out.Intervals = append([]Timeframe(nil), c.Intervals...)
	out.Orders = append([]Order(nil), c.Orders...)
	out.Indicators = append([]string(nil), c.Indicators...)
	out.Plugins = append([]PluginBinding(nil), c.Plugins...)
	out.Normalize()
	return out
}

// DetectorPatch is a partial DetectorConfig. Nil scalars and empty collections leave the target untouched.
type DetectorPatch struct {
	Sysname        *string         `json:"sysname,omitempty" yaml:"sysname"`
	Key            *string         `json:"key,omitempty" yaml:"key"`
	IsActive       *bool           `json:"isActive,omitempty" yaml:"is_active"`
	IsBlocked      *bool           `json:"isBlocked,omitempty" yaml:"is_blocked"`
	UseSandbox     *bool           `json:"useSandbox,omitempty" yaml:"use_sandbox"`
	PreloadHistory *bool           `json:"preloadHistory,omitempty" yaml:"preload_history"`
	Currency       *string         `json:"currency,omitempty" yaml:"currency"`
	TradeSettings  *TradeSettings  `json:"tradeSettings,omitempty" yaml:"trade_settings"`
	Providers      []Provider      `json:"providers,omitempty" yaml:"providers"`
	Symbols        []Symbol        `json:"symbols,omitempty" yaml:"symbols"`
	Intervals      []Timeframe     `json:"intervals,omitempty" yaml:"intervals"`
	Orders         []Order         `json:"orders,omitempty" yaml:"-"`
	Indicators     []string        `json:"indicators,omitempty" yaml:"indicators"`
	Plugins        []PluginBinding `json:"plugins,omitempty" yaml:"plugins"`
}

// Apply returns base overlaid with p.
func (p DetectorPatch) Apply(base DetectorConfig) DetectorConfig {
	out := base.Clone()
	if p.Sysname != nil {
		out.Sysname = *p.Sysname
	}
	if p.Key != nil {
		out.Key = *p.Key
	}
	if p.IsActive != nil {
		out.IsActive = *p.IsActive
	}
	if p.IsBlocked != nil {
		out.IsBlocked = *p.IsBlocked
	}
	if p.UseSandbox != nil {
		out.UseSandbox = *p.UseSandbox
	}
	if p.PreloadHistory != nil {
		out.PreloadHistory = *p.PreloadHistory
	}
	if p.Currency != nil {
		out.Currency = *p.Currency
	}
	if p.TradeSettings != nil {
		out.TradeSettings = *p.TradeSettings
	}
	if len(p.Providers) > 0 {
		out.Providers = append([]Provider(nil), p.Providers...)
	}
	if len(p.Symbols) > 0 {
		out.Symbols = append([]Symbol(nil), p.Symbols...)
	}
	if len(p.Intervals) > 0 {
		out.Intervals = append([]Timeframe(nil), p.Intervals...)
	}
	if len(p.Orders) > 0 {
		out.Orders = append([]Order(nil), p.Orders...)
	}
	if len(p.Indicators) > 0 {
		out.Indicators = append([]string(nil), p.Indicators...)
	}
	if len(p.Plugins) > 0 {
		out.Plugins = append([]PluginBinding(nil), p.Plugins...)
	}
	return out
}
