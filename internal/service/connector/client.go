package connector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	pkghttp "Detector/pkg/http"
)

// Client talks to the REST API each provider exposes for topology, accounts,
// history and detector registration.
type Client struct {
	http *pkghttp.Client
}

func NewClient(httpClient *pkghttp.Client) *Client {
	return &Client{http: httpClient}
}

type leverageRequest struct {
	ConnectorType models.ConnectorType `json:"connectorType"`
	MarketType    models.MarketType    `json:"marketType"`
	Symbol        models.Symbol        `json:"symbol"`
	Leverage      int                  `json:"leverage"`
}

func endpoint(base string, parts ...string) string {
	u := strings.TrimRight(base, "/")
	for _, p := range parts {
		u += "/" + url.PathEscape(p)
	}
	return u
}

func upstream(op string, err error) error {
	return fmt.Errorf("connector %s: %w: %w", op, models.ErrUpstreamUnavailable, err)
}

func (c *Client) GetProviderOptions(ctx context.Context, providerURL string) (*models.Provider, error) {
	var p models.Provider
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    endpoint(providerURL, "options"),
	}, &p)
	if err != nil {
		return nil, upstream("options", err)
	}
	return &p, nil
}

func (c *Client) GetAccount(ctx context.Context, providerURL string, connectorType models.ConnectorType, marketType models.MarketType) (*models.Account, error) {
	var a models.Account
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodGet,
		URL:    endpoint(providerURL, "account"),
		QueryParams: map[string][]string{
			"connectorType": {string(connectorType)},
			"marketType":    {string(marketType)},
		},
	}, &a)
	if err != nil {
		return nil, upstream("account", err)
	}
	if a.ConnectorType == "" {
		a.ConnectorType = connectorType
	}
	if a.MarketType == "" {
		a.MarketType = marketType
	}
	return &a, nil
}

func (c *Client) GetCandles(ctx context.Context, q repository.CandlesQuery) ([]models.Candle, error) {
	params := map[string][]string{
		"connectorType": {string(q.ConnectorType)},
		"marketType":    {string(q.MarketType)},
		"symbol":        {q.Symbol},
		"interval":      {string(q.Interval)},
	}
	if q.Limit > 0 {
		params["limit"] = []string{strconv.Itoa(q.Limit)}
	}
	var out []models.Candle
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method:      pkghttp.MethodGet,
		URL:         endpoint(q.ProviderURL, "candles"),
		QueryParams: params,
	}, &out)
	if err != nil {
		return nil, upstream("candles", err)
	}
	for i := range out {
		if out[i].Symbol.Name == "" {
			out[i].Symbol = models.Symbol{Name: q.Symbol}
		}
		if out[i].Interval == "" {
			out[i].Interval = q.Interval
		}
	}
	return out, nil
}

func (c *Client) RegisterDetector(ctx context.Context, providerURL string, detector models.DetectorConfig) error {
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    endpoint(providerURL, "detectors"),
		Body:   detector,
	}, nil)
	if err != nil {
		return upstream("register detector", err)
	}
	return nil
}

func (c *Client) UpdateDetector(ctx context.Context, providerURL string, detector models.DetectorConfig) error {
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPut,
		URL:    endpoint(providerURL, "detectors", detector.Key),
		Body:   detector,
	}, nil)
	if err != nil {
		return upstream("update detector", err)
	}
	return nil
}

func (c *Client) ChangeLeverage(ctx context.Context, providerURL string, route models.Route, symbol models.Symbol, leverage int) error {
	err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{
		Method: pkghttp.MethodPost,
		URL:    endpoint(providerURL, "leverage"),
		Body: leverageRequest{
			ConnectorType: route.ConnectorType,
			MarketType:    route.MarketType,
			Symbol:        symbol,
			Leverage:      leverage,
		},
	}, nil)
	if err != nil {
		return upstream("leverage", err)
	}
	return nil
}

var _ repository.ConnectorService = (*Client)(nil)
