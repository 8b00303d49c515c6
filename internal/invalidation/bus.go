// Package invalidation keeps the process-local cache levels of several
// processes coherent over Redis pub/sub.
//
// Every local change is published with the origin of the publishing process.
// Subscribers ignore their own messages and drop the named keys and tags from
// their process-local levels only.
package invalidation

import (
	"context"
	"encoding/json"
	"sync"

	"fastsearch-cache/internal/cache"
	"fastsearch-cache/internal/common/errors"
	"fastsearch-cache/internal/common/logging"
	redisclient "fastsearch-cache/internal/redis"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "fastsearch:invalidation"

// Message is the payload published for every change.
type Message struct {
	Origin string `json:"origin"`
	cache.Invalidation
}

// Applier receives invalidations published by other processes.
type Applier interface {
	ApplyRemoteInvalidation(ctx context.Context, inv cache.Invalidation)
}

// Bus publishes and consumes invalidation messages.
type Bus struct {
	client  *redisclient.Client
	channel string
	origin  string
	logger  logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a bus on channel. origin identifies this process.
func New(client *redisclient.Client, channel, origin string, logger logging.Logger) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	if logger == nil {
		logger = logging.Component("invalidation")
	}
	return &Bus{
		client:  client,
		channel: channel,
		origin:  origin,
		logger:  logger.WithFields(logging.Field{Key: "origin", Value: origin}),
	}
}

// Origin returns the identifier of this process.
func (b *Bus) Origin() string {
	return b.origin
}

// Notify implements cache.Notifier.
func (b *Bus) Notify(ctx context.Context, inv cache.Invalidation) error {
	if len(inv.Keys) == 0 && len(inv.Tags) == 0 && !inv.Flush {
		return nil
	}
	return b.client.Publish(ctx, b.channel, Message{Origin: b.origin, Invalidation: inv})
}

// Start subscribes and delivers messages from other processes to applier
// until Close is called or ctx ends. It returns once the subscription is
// confirmed.
func (b *Bus) Start(ctx context.Context, applier Applier) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done != nil {
		return errors.InternalError("invalidation bus already started", nil)
	}

	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return errors.ConnectionError("failed to subscribe to invalidation channel", err).
			WithContext("channel", b.channel)
	}

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-runCtx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				b.handle(runCtx, []byte(msg.Payload), applier)
			}
		}
	}()

	b.logger.Info("Invalidation bus subscribed", logging.Field{Key: "channel", Value: b.channel})
	return nil
}

func (b *Bus) handle(ctx context.Context, payload []byte, applier Applier) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		b.logger.Warn("Dropping malformed invalidation message", logging.Err(err))
		return
	}
	if m.Origin == b.origin {
		return
	}
	b.logger.Debug("Applying remote invalidation",
		logging.Field{Key: "from", Value: m.Origin},
		logging.Strings("keys", m.Keys),
		logging.Strings("tags", m.Tags),
		logging.Field{Key: "flush", Value: m.Flush})
	applier.ApplyRemoteInvalidation(ctx, m.Invalidation)
}

// Close stops the subscription and waits for the delivery loop to exit.
func (b *Bus) Close() error {
	b.mu.Lock()
	cancel, done := b.cancel, b.done
	b.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}
