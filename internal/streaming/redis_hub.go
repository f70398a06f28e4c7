package streaming

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-redis/redis/v8"
)

// DefaultRedisChannel is the pub/sub channel used when none is configured.
const DefaultRedisChannel = "stepflow:events"

// RedisHub publishes events as JSON on a Redis pub/sub channel so several
// processes can observe the same runs. Filtering happens on the subscriber.
type RedisHub struct {
	client  *redis.Client
	channel string
	logger  *slog.Logger
}

// NewRedisHub wraps client. An empty channel selects DefaultRedisChannel.
func NewRedisHub(client *redis.Client, channel string, logger *slog.Logger) *RedisHub {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisHub{client: client, channel: channel, logger: logger}
}

func (h *RedisHub) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe listens on the hub channel until cancel is called or ctx ends.
// Either one closes the Redis subscription and the returned channel.
func (h *RedisHub) Subscribe(ctx context.Context, filter Filter) (<-chan Event, func(), error) {
	pubsub := h.client.Subscribe(ctx, h.channel)
	// Wait for the subscription confirmation so no event published after
	// Subscribe returns is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe %s: %w", h.channel, err)
	}

	var closeOnce sync.Once
	closePubSub := func() { closeOnce.Do(func() { _ = pubsub.Close() }) }

	out := make(chan Event, defaultChannelBuffer)
	done := make(chan struct{})
	go func() {
		defer close(out)
		defer closePubSub()
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					h.logger.Warn("dropping malformed event", "channel", h.channel, "error", err)
					continue
				}
				if !filter.Matches(e) {
					continue
				}
				select {
				case out <- e:
				default:
				}
			}
		}
	}()

	var doneOnce sync.Once
	cancel := func() {
		doneOnce.Do(func() { close(done) })
		closePubSub()
	}
	return out, cancel, nil
}

var _ EventHub = (*RedisHub)(nil)
