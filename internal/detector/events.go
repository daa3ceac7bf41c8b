package detector

import (
	"context"

	"github.com/google/uuid"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

func isLifecycleEvent(t models.DetectorEventType) bool {
	return t == models.EventDetectorStarted || t == models.EventDetectorStopped
}

func (e *Engine) canPublish(eventType models.DetectorEventType) bool {
	if !e.emitEvents || e.deps.Publisher == nil {
		e.log.Debug("event emission disabled", logger.String("event", string(eventType)))
		return false
	}
	if !e.IsReady() && !isLifecycleEvent(eventType) {
		e.log.Warn("event dropped: detector not ready",
			logger.String("event", string(eventType)),
			logger.String("state", e.State().String()),
		)
		e.deps.Metrics.RecordEventDropped(string(eventType), "not_ready")
		return false
	}
	return true
}

// RegisterEvent publishes eventType once per symbol for every market of every
// active connector of every provider. It returns the number of messages published.
func (e *Engine) RegisterEvent(ctx context.Context, eventType models.DetectorEventType, payload map[string]any, symbols []models.Symbol) int {
	if !e.canPublish(eventType) {
		return 0
	}
	opts := e.Options()
	sent := 0
	for _, p := range opts.Providers {
		for _, c := range p.ActiveConnectors() {
			for _, m := range c.Markets {
				if len(symbols) == 0 {
					e.log.Warn("event has no symbols",
						logger.String("event", string(eventType)),
						logger.String("connector", string(c.ConnectorType)),
						logger.String("market", string(m.MarketType)),
					)
					continue
				}
				for range symbols {
					if e.publish(ctx, eventType, payload, symbols, c.ConnectorType, m.MarketType, opts.Key) {
						sent++
					}
				}
			}
		}
	}
	return sent
}

// emit publishes eventType once per market of every active connector, whatever the symbol count.
func (e *Engine) emit(ctx context.Context, eventType models.DetectorEventType, payload map[string]any, symbols []models.Symbol) int {
	if !e.canPublish(eventType) {
		return 0
	}
	opts := e.Options()
	sent := 0
	for _, p := range opts.Providers {
		for _, c := range p.ActiveConnectors() {
			for _, m := range c.Markets {
				if e.publish(ctx, eventType, payload, symbols, c.ConnectorType, m.MarketType, opts.Key) {
					sent++
				}
			}
		}
	}
	return sent
}

func (e *Engine) publish(
	ctx context.Context,
	eventType models.DetectorEventType,
	payload map[string]any,
	symbols []models.Symbol,
	connectorType models.ConnectorType,
	marketType models.MarketType,
	key string,
) bool {
	if symbols == nil {
		symbols = []models.Symbol{}
	}
	msg := models.SubscriptionValue{
		ID: uuid.NewString(),
		Value: models.DetectorEvent{
			EventType: eventType,
			Payload:   payload,
			Symbols:   symbols,
		},
		Options: models.OutboundOptions{
			ConnectorType: connectorType,
			MarketType:    marketType,
			Key:           key,
			UpdateMoment:  e.now().UnixMilli(),
		},
	}
	if err := e.deps.Publisher.Publish(ctx, msg); err != nil {
		e.log.Warn("publish failed",
			logger.String("event", string(eventType)),
			logger.String("connector", string(connectorType)),
			logger.String("market", string(marketType)),
			logger.Error(err),
		)
		e.deps.Metrics.RecordError("publish")
		return false
	}
	e.deps.Metrics.RecordPublished(string(eventType))
	return true
}

// EmitPluginDataChanged announces a plugin-scoped configuration change.
func (e *Engine) EmitPluginDataChanged(ctx context.Context, pluginName string, change, meta map[string]any) int {
	payload := map[string]any{
		"scope":      "plugin",
		"pluginName": pluginName,
		"change":     change,
		"ts":         e.now().UnixMilli(),
	}
	for k, v := range meta {
		payload[k] = v
	}
	return e.emit(ctx, models.EventConfigUpdated, payload, nil)
}

// UpsertIndicator stores an indicator value and announces it only when it changed.
func (e *Engine) UpsertIndicator(ctx context.Context, symbol models.Symbol, interval models.Timeframe, key string, value any, meta map[string]any) bool {
	if !e.indicators.Upsert(symbol.Name, interval, key, value) {
		return false
	}
	payload := map[string]any{
		"scope":    "indicator",
		"symbol":   symbol.Name,
		"interval": string(interval),
		"key":      key,
		"value":    value,
		"ts":       e.now().UnixMilli(),
	}
	for k, v := range meta {
		payload[k] = v
	}
	e.RegisterEvent(ctx, models.EventConfigUpdated, payload, []models.Symbol{{Name: symbol.Name}})
	return true
}
