package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	pkghttp "Detector/pkg/http"
)

// Client is the HTTP order-execution collaborator. Requests go to baseURL
// when set, otherwise to the provider the request is addressed to.
type Client struct {
	http    *pkghttp.Client
	baseURL string
}

func NewClient(httpClient *pkghttp.Client, baseURL string) *Client {
	return &Client{http: httpClient, baseURL: strings.TrimRight(baseURL, "/")}
}

type openPositionBody struct {
	Account    models.Account   `json:"account"`
	Symbol     models.Symbol    `json:"symbol"`
	Side       models.OrderSide `json:"side"`
	Quantity   float64          `json:"quantity"`
	Price      float64          `json:"price"`
	StopLoss   float64          `json:"stopLoss,omitempty"`
	TakeProfit float64          `json:"takeProfit,omitempty"`
}

type openPositionReply struct {
	Position models.Position `json:"position"`
	Account  *models.Account `json:"account,omitempty"`
}

type closePositionBody struct {
	Account  models.Account  `json:"account"`
	Position models.Position `json:"position"`
	Quantity float64         `json:"quantity"`
	Price    float64         `json:"price"`
}

type orderReply struct {
	Order           models.Order    `json:"order"`
	Account         *models.Account `json:"account,omitempty"`
	OpenOrderMoment int64           `json:"openOrderMoment,omitempty"`
}

type openOrderBody struct {
	Order           models.Order `json:"order"`
	OpenOrderMoment int64        `json:"openOrderMoment"`
}

type closeOrderBody struct {
	Order      models.Order `json:"order"`
	ClosePrice float64      `json:"closePrice"`
}

func (c *Client) url(providerURL, path string) (string, error) {
	base := c.baseURL
	if base == "" {
		base = strings.TrimRight(providerURL, "/")
	}
	if base == "" {
		return "", fmt.Errorf("orders %s: no endpoint: %w", path, models.ErrUpstreamUnavailable)
	}
	return base + path, nil
}

func (c *Client) post(ctx context.Context, providerURL, path string, body, dest interface{}) error {
	u, err := c.url(providerURL, path)
	if err != nil {
		return err
	}
	if err := c.http.SendAndParse(ctx, &pkghttp.RequestOptions{Method: pkghttp.MethodPost, URL: u, Body: body}, dest); err != nil {
		return fmt.Errorf("orders %s: %w: %w", path, models.ErrUpstreamUnavailable, err)
	}
	return nil
}

func (c *Client) OpenPosition(ctx context.Context, req repository.OpenPositionRequest) (*repository.OpenPositionResult, error) {
	var reply openPositionReply
	err := c.post(ctx, req.ProviderURL, "/orders/positions/open", openPositionBody{
		Account:    req.Account,
		Symbol:     req.Symbol,
		Side:       req.Side,
		Quantity:   req.Quantity,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &repository.OpenPositionResult{Position: reply.Position, Account: reply.Account}, nil
}

func (c *Client) ClosePosition(ctx context.Context, req repository.ClosePositionRequest) (*repository.ClosePositionResult, error) {
	var reply orderReply
	err := c.post(ctx, req.ProviderURL, "/orders/positions/close", closePositionBody{
		Account:  req.Account,
		Position: req.Position,
		Quantity: req.Quantity,
		Price:    req.Price,
	}, &reply)
	if err != nil {
		return nil, err
	}
	return &repository.ClosePositionResult{Order: reply.Order, Account: reply.Account}, nil
}

func (c *Client) OpenOrder(ctx context.Context, req repository.OpenOrderRequest) (*repository.OpenOrderResult, error) {
	var reply orderReply
	err := c.post(ctx, req.ProviderURL, "/orders/open", openOrderBody{Order: req.Order, OpenOrderMoment: req.OpenOrderMoment}, &reply)
	if err != nil {
		return nil, err
	}
	moment := reply.OpenOrderMoment
	if moment == 0 {
		moment = req.OpenOrderMoment
	}
	return &repository.OpenOrderResult{Order: reply.Order, Account: reply.Account, OpenOrderMoment: moment}, nil
}

func (c *Client) CloseOrder(ctx context.Context, req repository.CloseOrderRequest) (*repository.CloseOrderResult, error) {
	var reply orderReply
	err := c.post(ctx, req.ProviderURL, "/orders/close", closeOrderBody{Order: req.Order, ClosePrice: req.ClosePrice}, &reply)
	if err != nil {
		return nil, err
	}
	return &repository.CloseOrderResult{Order: reply.Order, Account: reply.Account}, nil
}

// UpdateTrailingStop keeps the stop distance behind lastPrice. The stop only
// ever tightens: up for longs, down for shorts.
func (c *Client) UpdateTrailingStop(lastPrice float64, position models.Position, distance float64) (float64, bool) {
	if lastPrice <= 0 || distance <= 0 {
		return 0, false
	}
	price := decimal.NewFromFloat(lastPrice)
	dist := decimal.NewFromFloat(distance)
	current := decimal.NewFromFloat(position.StopLoss)

	switch position.Side {
	case models.SideLong:
		candidate := price.Sub(dist)
		if candidate.GreaterThan(current) {
			return candidate.InexactFloat64(), true
		}
	case models.SideShort:
		candidate := price.Add(dist)
		if position.StopLoss == 0 || candidate.LessThan(current) {
			return candidate.InexactFloat64(), true
		}
	}
	return 0, false
}

var _ repository.OrderService = (*Client)(nil)
