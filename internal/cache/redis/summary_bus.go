package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/quollview/spreadscraper/internal/domain"
)

// summaryChannelPrefix namespaces the Pub/Sub channels that carry fresh
// market summaries. Callers address channels by market ID (or glob pattern);
// the prefix stays internal to the bus.
const summaryChannelPrefix = "summary:"

// SummaryBus implements domain.SummaryBus using Redis Pub/Sub. Each scrape
// tick publishes the market's summary JSON; the websocket hub subscribes with
// a wildcard and fans the payloads out to connected clients.
type SummaryBus struct {
	rdb *redis.Client
}

// NewSummaryBus creates a SummaryBus backed by the given Client.
func NewSummaryBus(c *Client) *SummaryBus {
	return &SummaryBus{rdb: c.rdb}
}

// Publish sends a summary payload for a market.
func (sb *SummaryBus) Publish(ctx context.Context, marketID string, payload []byte) error {
	channel := summaryChannelPrefix + marketID
	if err := sb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a read-only channel of summary payloads for the given
// market ID or glob pattern ("*" for all markets). The subscription and the
// returned channel are closed when the context is cancelled.
func (sb *SummaryBus) Subscribe(ctx context.Context, pattern string) (<-chan []byte, error) {
	channel := summaryChannelPrefix + pattern

	var pubsub *redis.PubSub
	if hasPattern(channel) {
		pubsub = sb.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = sb.rdb.Subscribe(ctx, channel)
	}

	// Verify the subscription is established by receiving the confirmation.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// hasPattern returns true when the Redis channel includes glob-style
// wildcards, in which case PSubscribe must be used instead of Subscribe.
func hasPattern(channel string) bool {
	return strings.ContainsAny(channel, "*?[")
}

// Compile-time interface check.
var _ domain.SummaryBus = (*SummaryBus)(nil)
