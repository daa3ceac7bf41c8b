package events

import (
	"context"
	"errors"

	"Detector/internal/domain/models"
	pkgkafka "Detector/pkg/kafka"
	"Detector/pkg/logger"
)

// KafkaHandler consumes one pattern from its own topic.
type KafkaHandler struct {
	topic   string
	pattern models.EventPattern
	router  *Router
}

var _ pkgkafka.MessageHandler = (*KafkaHandler)(nil)

func (h *KafkaHandler) Topic() string { return h.topic }

// Handle routes the message. Malformed payloads are acknowledged instead of
// retried since redelivery cannot fix them.
func (h *KafkaHandler) Handle(ctx context.Context, data []byte) error {
	err := h.router.Handle(ctx, h.pattern, data)
	if errors.Is(err, ErrMalformedEvent) {
		h.router.log.Warn("dropping malformed kafka message",
			logger.String("topic", h.topic), logger.Error(err))
		return nil
	}
	return err
}

// KafkaHandlers returns one handler per inbound pattern; the topic of each is
// prefix followed by the pattern name.
func KafkaHandlers(router *Router, prefix string) []*KafkaHandler {
	out := make([]*KafkaHandler, 0, len(models.InboundPatterns))
	for _, p := range models.InboundPatterns {
		out = append(out, &KafkaHandler{topic: prefix + string(p), pattern: p, router: router})
	}
	return out
}

// RegisterKafkaHandlers wires every inbound pattern into c.
func RegisterKafkaHandlers(c *pkgkafka.Consumer, router *Router, prefix string) {
	for _, h := range KafkaHandlers(router, prefix) {
		c.RegisterHandler(h)
	}
}
