package detector

import (
	"reflect"
	"sync"

	"Detector/internal/domain/models"
)

// Grouped is implemented by indicator values that belong to a named group.
type Grouped interface {
	IndicatorGroup() string
}

// IndicatorStore keeps symbol -> interval -> key -> value.
type IndicatorStore struct {
	mu     sync.RWMutex
	values map[string]map[models.Timeframe]map[string]any
}

func NewIndicatorStore() *IndicatorStore {
	return &IndicatorStore{values: make(map[string]map[models.Timeframe]map[string]any)}
}

// Upsert stores value and reports whether it differs from what was there.
func (s *IndicatorStore) Upsert(symbol string, tf models.Timeframe, key string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTF, ok := s.values[symbol]
	if !ok {
		byTF = make(map[models.Timeframe]map[string]any)
		s.values[symbol] = byTF
	}
	byKey, ok := byTF[tf]
	if !ok {
		byKey = make(map[string]any)
		byTF[tf] = byKey
	}
	prev, existed := byKey[key]
	byKey[key] = value
	return !existed || !reflect.DeepEqual(prev, value)
}

// Select returns the named items plus every value whose group is listed.
func (s *IndicatorStore) Select(symbol string, tf models.Timeframe, groups, items []string) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any)
	byKey := s.values[symbol][tf]
	if byKey == nil {
		return out
	}
	for _, item := range items {
		if v, ok := byKey[item]; ok {
			out[item] = v
		}
	}
	if len(groups) == 0 {
		return out
	}
	wanted := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		wanted[g] = struct{}{}
	}
	for key, v := range byKey {
		g, ok := v.(Grouped)
		if !ok {
			continue
		}
		if _, hit := wanted[g.IndicatorGroup()]; hit {
			out[key] = v
		}
	}
	return out
}
