package detector

import (
	"sync"

	"Detector/internal/domain/models"
)

// AccountBook keeps one account per (connectorType, marketType).
type AccountBook struct {
	mu       sync.RWMutex
	accounts map[models.Route]models.Account
	order    []models.Route
}

func NewAccountBook() *AccountBook {
	return &AccountBook{accounts: make(map[models.Route]models.Account)}
}

// Update merges updated into the stored account for its key, or appends it.
// Orders are unioned by ExternalID and positions by symbol name; stored entries
// win on duplicates. Every other field comes from updated.
func (b *AccountBook) Update(updated models.Account) models.Account {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := updated.Key()
	current, ok := b.accounts[key]
	if !ok {
		b.accounts[key] = cloneAccount(updated)
		b.order = append(b.order, key)
		return cloneAccount(updated)
	}
	merged := updated
	merged.Orders = mergeOrders(current.Orders, updated.Orders)
	merged.Positions = mergePositions(current.Positions, updated.Positions)
	b.accounts[key] = merged
	return cloneAccount(merged)
}

// RemoveOrder drops an order from the account at key. It reports whether the order existed.
func (b *AccountBook) RemoveOrder(key models.Route, externalID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	acc, ok := b.accounts[key]
	if !ok {
		return false
	}
	for i, o := range acc.Orders {
		if o.ExternalID == externalID {
			acc.Orders = append(append([]models.Order(nil), acc.Orders[:i]...), acc.Orders[i+1:]...)
			b.accounts[key] = acc
			return true
		}
	}
	return false
}

// Get returns a copy of the account at key.
func (b *AccountBook) Get(key models.Route) (models.Account, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	acc, ok := b.accounts[key]
	if !ok {
		return models.Account{}, false
	}
	return cloneAccount(acc), true
}

// HasOrder reports whether key's account holds an order with externalID.
func (b *AccountBook) HasOrder(key models.Route, externalID string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, o := range b.accounts[key].Orders {
		if o.ExternalID == externalID {
			return true
		}
	}
	return false
}

// All returns copies in insertion order.
func (b *AccountBook) All() []models.Account {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Account, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, cloneAccount(b.accounts[key]))
	}
	return out
}

// Orders flattens orders across all accounts.
func (b *AccountBook) Orders() []models.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []models.Order
	for _, key := range b.order {
		out = append(out, b.accounts[key].Orders...)
	}
	return out
}

func (b *AccountBook) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.accounts)
}

func mergeOrders(current, incoming []models.Order) []models.Order {
	out := make([]models.Order, 0, len(current)+len(incoming))
	seen := make(map[string]struct{}, len(current)+len(incoming))
	for _, list := range [][]models.Order{current, incoming} {
		for _, o := range list {
			if _, dup := seen[o.ExternalID]; dup {
				continue
			}
			seen[o.ExternalID] = struct{}{}
			out = append(out, o)
		}
	}
	return out
}

func mergePositions(current, incoming []models.Position) []models.Position {
	out := make([]models.Position, 0, len(current)+len(incoming))
	seen := make(map[string]struct{}, len(current)+len(incoming))
	for _, list := range [][]models.Position{current, incoming} {
		for _, p := range list {
			if _, dup := seen[p.Symbol.Name]; dup {
				continue
			}
			seen[p.Symbol.Name] = struct{}{}
			out = append(out, p)
		}
	}
	return out
}

func cloneAccount(a models.Account) models.Account {
	a.Assets = append([]models.Asset(nil), a.Assets...)
	a.Orders = append([]models.Order(nil), a.Orders...)
	a.Positions = append([]models.Position(nil), a.Positions...)
	return a
}
