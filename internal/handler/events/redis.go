package events

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"

	"Detector/internal/domain/models"
	"Detector/pkg/logger"
)

type pubsubClient interface {
	Subscribe(ctx context.Context, channels ...string) *redis.PubSub
}

// RedisSubscriber listens on one channel per inbound pattern and feeds every
// message to the router. Messages are handled one at a time, in arrival order.
type RedisSubscriber struct {
	client pubsubClient
	router *Router
	prefix string
	log    *logger.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

func NewRedisSubscriber(client pubsubClient, router *Router, prefix string, log *logger.Logger) *RedisSubscriber {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisSubscriber{client: client, router: router, prefix: prefix, log: log.With(logger.String("component", "redis_subscriber"))}
}

// Channels lists the subscribed channel names.
func (s *RedisSubscriber) Channels() []string {
	out := make([]string, 0, len(models.InboundPatterns))
	for _, p := range models.InboundPatterns {
		out = append(out, s.prefix+string(p))
	}
	return out
}

// Start subscribes and begins delivery in the background.
func (s *RedisSubscriber) Start(ctx context.Context) error {
	ps := s.client.Subscribe(ctx, s.Channels()...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return err
	}

	s.mu.Lock()
	s.pubsub = ps
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.loop(ctx, ps.Channel(), s.done)
	s.log.Info("redis subscriber started", logger.Strings("channels", s.Channels()))
	return nil
}

func (s *RedisSubscriber) loop(ctx context.Context, ch <-chan *redis.Message, done chan struct{}) {
	defer close(done)
	for msg := range ch {
		s.HandleMessage(ctx, msg.Channel, []byte(msg.Payload))
	}
}

// HandleMessage routes one payload received on channel. Errors are logged;
// pub/sub has no redelivery.
func (s *RedisSubscriber) HandleMessage(ctx context.Context, channel string, payload []byte) {
	pattern := models.EventPattern(strings.TrimPrefix(channel, s.prefix))
	if err := s.router.Handle(ctx, pattern, payload); err != nil {
		lvl := s.log.Error
		if errors.Is(err, ErrMalformedEvent) || errors.Is(err, models.ErrForbiddenOperation) {
			lvl = s.log.Warn
		}
		lvl("inbound event failed", logger.String("channel", channel), logger.Error(err))
	}
}

// Close unsubscribes and waits for the delivery loop to exit.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()
	ps, done := s.pubsub, s.done
	s.pubsub = nil
	s.mu.Unlock()
	if ps == nil {
		return nil
	}
	err := ps.Close()
	<-done
	return err
}
