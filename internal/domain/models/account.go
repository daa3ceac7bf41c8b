package models

type OrderSide string

const (
	SideLong  OrderSide = "LONG"
	SideShort OrderSide = "SHORT"
)

type OrderStatus string

const (
	OrderNew      OrderStatus = "NEW"
	OrderFilled   OrderStatus = "FILLED"
	OrderCanceled OrderStatus = "CANCELED"
	OrderExpired  OrderStatus = "EXPIRED"
)

// Account is a per (connectorType, marketType) snapshot.
type Account struct {
	ConnectorType ConnectorType `json:"connectorType"`
	MarketType    MarketType    `json:"marketType"`
	Assets        []Asset       `json:"assets,omitempty"`
	Orders        []Order       `json:"orders,omitempty"`
	Positions     []Position    `json:"positions,omitempty"`
	UpdateMoment  int64         `json:"updateMoment,omitempty"`
}

// Key returns the pair an account is indexed by.
func (a Account) Key() Route {
	return Route{ConnectorType: a.ConnectorType, MarketType: a.MarketType}
}

// Asset looks up a balance by asset symbol name.
func (a Account) Asset(name string) (Asset, bool) {
	for _, as := range a.Assets {
		if as.Symbol.Name == name {
			return as, true
		}
	}
	return Asset{}, false
}

type Asset struct {
	Symbol           Symbol  `json:"symbol"`
	AvailableBalance float64 `json:"availableBalance"`
	WalletBalance    float64 `json:"walletBalance"`
}

// Order is identified by ExternalID within an account.
type Order struct {
	ExternalID    string        `json:"externalId"`
	Symbol        Symbol        `json:"symbol"`
	Side          OrderSide     `json:"side"`
	Type          string        `json:"type,omitempty"`
	Price         float64       `json:"price"`
	Quantity      float64       `json:"quantity"`
	Status        OrderStatus   `json:"status,omitempty"`
	Time          int64         `json:"time,omitempty"`
	ConnectorType ConnectorType `json:"connectorType,omitempty"`
	MarketType    MarketType    `json:"marketType,omitempty"`
}

// Position is keyed by Symbol.Name.
type Position struct {
	Symbol        Symbol        `json:"symbol"`
	Side          OrderSide     `json:"side"`
	Quantity      float64       `json:"quantity"`
	EntryPrice    float64       `json:"entryPrice"`
	StopLoss      float64       `json:"stopLoss,omitempty"`
	TakeProfit    float64       `json:"takeProfit,omitempty"`
	OpenedAt      int64         `json:"openedAt,omitempty"`
	ConnectorType ConnectorType `json:"connectorType,omitempty"`
	MarketType    MarketType    `json:"marketType,omitempty"`
}

const AccountEventOrderTradeUpdate = "ORDER_TRADE_UPDATE"

// AccountEvent is a venue notification that an account changed.
type AccountEvent struct {
	EventType string              `json:"eventType"`
	Options   AccountEventOptions `json:"options"`
}

type AccountEventOptions struct {
	ConnectorType ConnectorType `json:"connectorType,omitempty"`
	MarketType    MarketType    `json:"marketType"`
	OrderID       string        `json:"orderId,omitempty"`
	OrderStatus   OrderStatus   `json:"orderStatus,omitempty"`
}

// PermissibleQuantity is the order-size envelope for one entry.
type PermissibleQuantity struct {
	Acceptable                        bool    `json:"acceptable"`
	AcceptableQuantityMin             float64 `json:"acceptableQuantityMin"`
	AcceptableQuantityMax             float64 `json:"acceptableQuantityMax"`
	EntryQuantityDefault              float64 `json:"entryQuantityDefault"`
	EntryBalanceDefault               float64 `json:"entryBalanceDefault"`
	EntryBalanceMax                   float64 `json:"entryBalanceMax"`
	PermissibleQuantityDefaultPercent float64 `json:"permissibleQuantityDefaultPercent"`
}
