package detector

import (
	"fmt"
	"sync"

	"Detector/internal/domain/models"
)

// PositionLedger holds at most one open position per symbol name.
type PositionLedger struct {
	mu        sync.RWMutex
	positions map[string]models.Position
	order     []string
}

func NewPositionLedger() *PositionLedger {
	return &PositionLedger{positions: make(map[string]models.Position)}
}

// Add records a new position. A second position on the same symbol fails with ErrDuplicatePosition.
func (l *PositionLedger) Add(p models.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := p.Symbol.Name
	if _, exists := l.positions[name]; exists {
		return fmt.Errorf("%s: %w", name, models.ErrDuplicatePosition)
	}
	l.positions[name] = p
	l.order = append(l.order, name)
	return nil
}

// Get returns the position on symbol.
func (l *PositionLedger) Get(symbol string) (models.Position, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[symbol]
	return p, ok
}

// Reduce closes quantity of the position on symbol. A zero quantity or one that
// covers the whole position removes it; anything smaller decrements in place.
// It reports whether the position is gone afterwards.
func (l *PositionLedger) Reduce(symbol string, quantity float64) (removed bool, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return false, fmt.Errorf("%s: %w", symbol, models.ErrPositionNotFound)
	}
	if quantity <= 0 || quantity >= p.Quantity {
		l.removeLocked(symbol)
		return true, nil
	}
	p.Quantity -= quantity
	l.positions[symbol] = p
	return false, nil
}

// Remove drops the position on symbol if any.
func (l *PositionLedger) Remove(symbol string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.positions[symbol]; !ok {
		return false
	}
	l.removeLocked(symbol)
	return true
}

func (l *PositionLedger) removeLocked(symbol string) {
	delete(l.positions, symbol)
	for i, name := range l.order {
		if name == symbol {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// SetStopLoss moves the stop of an existing position.
func (l *PositionLedger) SetStopLoss(symbol string, stop float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%s: %w", symbol, models.ErrPositionNotFound)
	}
	p.StopLoss = stop
	l.positions[symbol] = p
	return nil
}

// All returns positions in the order they were opened.
func (l *PositionLedger) All() []models.Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]models.Position, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.positions[name])
	}
	return out
}

func (l *PositionLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.positions)
}
