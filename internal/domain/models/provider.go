package models

import "net/url"

type ConnectorType string

type MarketType string

const (
	MarketSpot    MarketType = "spot"
	MarketFutures MarketType = "futures"
)

// Provider is an upstream market-data/execution source reachable over REST.
type Provider struct {
	Key          string      `json:"key" yaml:"key"`
	RestAPIURL   string      `json:"restApiUrl" yaml:"rest_api_url"`
	RestAPIToken string      `json:"restApiToken,omitempty" yaml:"rest_api_token"`
	Title        string      `json:"title,omitempty" yaml:"title"`
	Connectors   []Connector `json:"connectors,omitempty" yaml:"connectors"`
}

// HasValidURL reports whether RestAPIURL is an absolute http(s) URL.
func (p Provider) HasValidURL() bool {
	u, err := url.Parse(p.RestAPIURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// ActiveConnectors returns connectors taking part in event fan-out.
func (p Provider) ActiveConnectors() []Connector {
	out := make([]Connector, 0, len(p.Connectors))
	for _, c := range p.Connectors {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out
}

// MergeFetched fills gaps in p with the fetched topology; fields already set on p win.
func (p Provider) MergeFetched(fetched Provider) Provider {
	out := p
	if out.Key == "" {
		out.Key = fetched.Key
	}
	if out.RestAPIToken == "" {
		out.RestAPIToken = fetched.RestAPIToken
	}
	if out.Title == "" {
		out.Title = fetched.Title
	}
	if len(out.Connectors) == 0 {
		out.Connectors = fetched.Connectors
	}
	return out
}

type Connector struct {
	ConnectorType ConnectorType `json:"connectorType" yaml:"connector_type"`
	IsActive      bool          `json:"isActive" yaml:"is_active"`
	Markets       []Market      `json:"markets,omitempty" yaml:"markets"`
}

type Market struct {
	MarketType MarketType `json:"marketType" yaml:"market_type"`
	Symbols    []Symbol   `json:"symbols,omitempty" yaml:"symbols"`
}

// FindSymbol looks a symbol up by name.
func (m Market) FindSymbol(name string) (Symbol, bool) {
	for _, s := range m.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return Symbol{}, false
}

// Symbol is identified by Name everywhere; Quantity is the configured default entry size.
type Symbol struct {
	Name     string  `json:"name" yaml:"name" validate:"required"`
	Quantity float64 `json:"quantity,omitempty" yaml:"quantity"`
	Leverage int     `json:"leverage,omitempty" yaml:"leverage"`
}

// Route addresses one (connector, market) channel.
type Route struct {
	ConnectorType ConnectorType `json:"connectorType,omitempty"`
	MarketType    MarketType    `json:"marketType,omitempty"`
}
