package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/chainsafe/mintwatch/internal/metrics"
)

const (
	pathDirect = "direct"
	pathRelay  = "relay"
)

// ChannelSender posts a payload to a channel as the bot.
type ChannelSender interface {
	SendMessage(ctx context.Context, channelID string, p Payload) error
}

// Report counts the outcome of one fan-out.
type Report struct {
	Delivered int
	Failed    int
}

// Dispatcher fans a payload out to channels. Every channel is delivered
// independently; one failure never affects the others.
type Dispatcher struct {
	sender ChannelSender
	relay  *RelayCache
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. relay may be nil when the relay path
// is not used.
func NewDispatcher(sender ChannelSender, relay *RelayCache, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sender: sender, relay: relay, logger: logger}
}

// Send posts p to every channel directly.
func (d *Dispatcher) Send(ctx context.Context, channelIDs []string, p Payload) Report {
	return d.fanOut(ctx, pathDirect, channelIDs, func(ctx context.Context, channelID string) error {
		return d.sender.SendMessage(ctx, channelID, p)
	})
}

// SendViaRelay posts p to every channel through its relay webhook.
func (d *Dispatcher) SendViaRelay(ctx context.Context, channelIDs []string, p Payload) Report {
	if d.relay == nil {
		d.logger.Warn("Relay path requested without a relay cache, sending directly")
		return d.Send(ctx, channelIDs, p)
	}
	return d.fanOut(ctx, pathRelay, channelIDs, func(ctx context.Context, channelID string) error {
		return d.relay.Send(ctx, channelID, p)
	})
}

func (d *Dispatcher) fanOut(ctx context.Context, path string, channelIDs []string, deliver func(context.Context, string) error) Report {
	var (
		wg        sync.WaitGroup
		delivered atomic.Int64
		failed    atomic.Int64
	)

	for _, channelID := range dedupe(channelIDs) {
		wg.Add(1)
		go func(channelID string) {
			defer wg.Done()

			err := func() (err error) {
				defer func() {
					if r := recover(); r != nil {
						err = fmt.Errorf("panic during delivery: %v", r)
					}
				}()
				return deliver(ctx, channelID)
			}()

			if err != nil {
				failed.Add(1)
				metrics.Notifications.WithLabelValues(path, "failed").Inc()
				d.logger.Warn("Failed to deliver notification",
					zap.String("path", path),
					zap.String("channel_id", channelID),
					zap.Error(err))
				return
			}
			delivered.Add(1)
			metrics.Notifications.WithLabelValues(path, "delivered").Inc()
		}(channelID)
	}
	wg.Wait()

	return Report{Delivered: int(delivered.Load()), Failed: int(failed.Load())}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
