package notify

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Webhook identifies a channel relay webhook.
type Webhook struct {
	ID        string
	Token     string
	ChannelID string
}

// WebhookAPI creates and executes channel webhooks on the chat platform.
type WebhookAPI interface {
	CreateWebhook(ctx context.Context, channelID, name string) (Webhook, error)
	ExecuteWebhook(ctx context.Context, hook Webhook, p Payload) error
}

// RelayCache keeps one relay webhook per channel. Concurrent first use of a
// channel creates exactly one webhook.
type RelayCache struct {
	api    WebhookAPI
	name   string
	logger *zap.Logger

	mu    sync.RWMutex
	hooks map[string]Webhook
	group singleflight.Group
}

// NewRelayCache creates a cache that names new webhooks after name.
func NewRelayCache(api WebhookAPI, name string, logger *zap.Logger) *RelayCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayCache{
		api:    api,
		name:   name,
		logger: logger,
		hooks:  make(map[string]Webhook),
	}
}

func (c *RelayCache) lookup(channelID string) (Webhook, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hook, ok := c.hooks[channelID]
	return hook, ok
}

// Get returns the channel's webhook, creating it on first use.
func (c *RelayCache) Get(ctx context.Context, channelID string) (Webhook, error) {
	if hook, ok := c.lookup(channelID); ok {
		return hook, nil
	}

	v, err, _ := c.group.Do(channelID, func() (any, error) {
		// a flight that finished just before this one may have filled the entry
		if hook, ok := c.lookup(channelID); ok {
			return hook, nil
		}
		hook, err := c.api.CreateWebhook(ctx, channelID, c.name)
		if err != nil {
			return Webhook{}, err
		}
		c.mu.Lock()
		c.hooks[channelID] = hook
		c.mu.Unlock()
		c.logger.Info("Created relay webhook",
			zap.String("channel_id", channelID),
			zap.String("webhook_id", hook.ID))
		return hook, nil
	})
	if err != nil {
		return Webhook{}, fmt.Errorf("failed to create relay webhook for channel %s: %w", channelID, err)
	}
	return v.(Webhook), nil
}

// Invalidate forgets the channel's webhook.
func (c *RelayCache) Invalidate(channelID string) {
	c.mu.Lock()
	delete(c.hooks, channelID)
	c.mu.Unlock()
}

// InvalidateIf forgets the channel's webhook only while it is still hookID.
// A sender holding a stale webhook must not drop a replacement another
// sender already created.
func (c *RelayCache) InvalidateIf(channelID, hookID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.hooks[channelID]; ok && cur.ID == hookID {
		delete(c.hooks, channelID)
		return true
	}
	return false
}

// Send executes the channel's webhook. A failed execution invalidates the
// entry, unless it was already replaced, and is retried once with the
// current webhook.
func (c *RelayCache) Send(ctx context.Context, channelID string, p Payload) error {
	hook, err := c.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if err = c.api.ExecuteWebhook(ctx, hook, p); err == nil {
		return nil
	}

	c.logger.Warn("Relay webhook failed, retrying with a new one",
		zap.String("channel_id", channelID),
		zap.Error(err))
	c.InvalidateIf(channelID, hook.ID)

	hook, err = c.Get(ctx, channelID)
	if err != nil {
		return err
	}
	if err = c.api.ExecuteWebhook(ctx, hook, p); err != nil {
		return fmt.Errorf("failed to execute relay webhook for channel %s: %w", channelID, err)
	}
	return nil
}
