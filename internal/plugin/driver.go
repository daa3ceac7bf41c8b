package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"Detector/internal/domain/models"
	"Detector/internal/domain/repository"
	"Detector/pkg/logger"
)

// HookError wraps the failure of one plugin for one hook.
type HookError struct {
	Hook   Hook
	Plugin string
	Err    error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("plugin %s %s: %v", e.Plugin, e.Hook, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }

// Driver keeps the ordered plugin list and runs hooks across it.
type Driver struct {
	mu      sync.RWMutex
	plugins []Plugin
	log     *logger.Logger
	metrics repository.Metrics
}

func NewDriver(log *logger.Logger, metrics repository.Metrics) *Driver {
	return &Driver{log: log, metrics: metrics}
}

// Register adds plugins in order. A plugin whose name is already registered
// replaces the old instance at the same position.
func (d *Driver) Register(plugins ...Plugin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range plugins {
		if p == nil {
			continue
		}
		d.upsertLocked(p)
	}
}

// Replace swaps the instance with the same GUID (or name) in place, appending when absent.
func (d *Driver) Replace(p Plugin) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.upsertLocked(p)
}

func (d *Driver) upsertLocked(p Plugin) {
	for i, cur := range d.plugins {
		if samePlugin(cur, p) {
			d.plugins[i] = p
			return
		}
	}
	d.plugins = append(d.plugins, p)
}

func samePlugin(a, b Plugin) bool {
	if ga, gb := a.Meta().GUID, b.Meta().GUID; ga != "" && ga == gb {
		return true
	}
	return a.Name() == b.Name()
}

// Remove drops the plugin matching name or GUID.
func (d *Driver) Remove(nameOrGUID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, p := range d.plugins {
		if p.Name() == nameOrGUID || p.Meta().GUID == nameOrGUID {
			d.plugins = append(d.plugins[:i], d.plugins[i+1:]...)
			return true
		}
	}
	return false
}

// Plugins returns a snapshot in registration order.
func (d *Driver) Plugins() []Plugin {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Plugin(nil), d.plugins...)
}

// Find looks a plugin up by name or GUID.
func (d *Driver) Find(nameOrGUID string) (Plugin, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, p := range d.plugins {
		if p.Name() == nameOrGUID || p.Meta().GUID == nameOrGUID {
			return p, true
		}
	}
	return nil, false
}

// AsyncReduce calls hook on every registered plugin in registration order, threading
// pc through all of them. A failing or panicking plugin is logged and skipped; the
// rest still run. The joined failures are returned for the caller to log or ignore.
func (d *Driver) AsyncReduce(ctx context.Context, hook Hook, pc *Context, arg any) error {
	if pc == nil {
		pc = NewContext(nil, nil, d.Find)
	}
	var errs []error
	for _, p := range d.Plugins() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := d.invoke(ctx, p, hook, pc, arg); err != nil {
			herr := &HookError{Hook: hook, Plugin: p.Name(), Err: err}
			d.log.Warn("plugin hook failed",
				logger.String("hook", string(hook)),
				logger.String("plugin", p.Name()),
				logger.Error(err),
			)
			if d.metrics != nil {
				d.metrics.RecordHookFailure(string(hook), p.Name())
			}
			errs = append(errs, herr)
		}
	}
	return errors.Join(errs...)
}

func (d *Driver) invoke(ctx context.Context, p Plugin, hook Hook, pc *Context, arg any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return dispatch(ctx, p, hook, pc, arg)
}

func dispatch(ctx context.Context, p Plugin, hook Hook, pc *Context, arg any) error {
	switch hook {
	case HookInit, HookStart, HookDispose:
		h, ok := p.(LifecycleHooks)
		if !ok {
			return nil
		}
		switch hook {
		case HookInit:
			return h.OnInit(ctx, pc)
		case HookStart:
			return h.OnStart(ctx, pc)
		default:
			return h.OnDispose(ctx, pc)
		}
	case HookTrade, HookAfterTrade:
		h, ok := p.(TradeHooks)
		if !ok {
			return nil
		}
		trade, err := argAs[models.Trade](hook, arg)
		if err != nil {
			return err
		}
		if hook == HookTrade {
			return h.OnTrade(ctx, pc, trade)
		}
		return h.OnAfterTrade(ctx, pc, trade)
	case HookAccountUpdate, HookAfterAccountUpdate:
		h, ok := p.(AccountHooks)
		if !ok {
			return nil
		}
		account, err := argAs[models.Account](hook, arg)
		if err != nil {
			return err
		}
		if hook == HookAccountUpdate {
			return h.OnAccountUpdate(ctx, pc, account)
		}
		return h.OnAfterAccountUpdate(ctx, pc, account)
	case HookCandleUpdate, HookAfterCandleUpdate, HookCandleOpen, HookAfterCandleOpen, HookCandleClose, HookAfterCandleClose:
		h, ok := p.(CandleHooks)
		if !ok {
			return nil
		}
		candle, err := argAs[models.Candle](hook, arg)
		if err != nil {
			return err
		}
		switch hook {
		case HookCandleUpdate:
			return h.OnCandleUpdate(ctx, pc, candle)
		case HookAfterCandleUpdate:
			return h.OnAfterCandleUpdate(ctx, pc, candle)
		case HookCandleOpen:
			return h.OnCandleOpen(ctx, pc, candle)
		case HookAfterCandleOpen:
			return h.OnAfterCandleOpen(ctx, pc, candle)
		case HookCandleClose:
			return h.OnCandleClose(ctx, pc, candle)
		default:
			return h.OnAfterCandleClose(ctx, pc, candle)
		}
	case HookOrderBookUpdate, HookAfterOrderBookUpdate:
		h, ok := p.(OrderBookHooks)
		if !ok {
			return nil
		}
		book, err := argAs[models.OrderBook](hook, arg)
		if err != nil {
			return err
		}
		if hook == HookOrderBookUpdate {
			return h.OnOrderBookUpdate(ctx, pc, book)
		}
		return h.OnAfterOrderBookUpdate(ctx, pc, book)
	case HookOrderOpen, HookAfterOrderOpen, HookOrderClose, HookAfterOrderClose:
		h, ok := p.(OrderHooks)
		if !ok {
			return nil
		}
		order, err := argAs[models.Order](hook, arg)
		if err != nil {
			return err
		}
		switch hook {
		case HookOrderOpen:
			return h.OnOrderOpen(ctx, pc, order)
		case HookAfterOrderOpen:
			return h.OnAfterOrderOpen(ctx, pc, order)
		case HookOrderClose:
			return h.OnOrderClose(ctx, pc, order)
		default:
			return h.OnAfterOrderClose(ctx, pc, order)
		}
	case HookInspectorRegulation, HookAfterInspectorRegulation:
		h, ok := p.(InspectorHooks)
		if !ok {
			return nil
		}
		ev, err := argAs[models.InspectorEvent](hook, arg)
		if err != nil {
			return err
		}
		if hook == HookInspectorRegulation {
			return h.OnInspectorRegulation(ctx, pc, ev)
		}
		return h.OnAfterInspectorRegulation(ctx, pc, ev)
	}
	return fmt.Errorf("unknown hook %q", hook)
}

func argAs[T any](hook Hook, arg any) (T, error) {
	switch v := arg.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	var zero T
	return zero, fmt.Errorf("hook %s: unexpected argument %T", hook, arg)
}
