package queue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Notifier tells idle workers that new delivery work was committed.
// Notifications are hints: a lost one only delays delivery until the
// next poll.
type Notifier interface {
	Notify(ctx context.Context, issueID uuid.UUID) error
}

// NopNotifier is used when no Redis address is configured.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, uuid.UUID) error { return nil }

// RedisNotifier publishes and receives issue notifications over Redis pub/sub.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	log     zerolog.Logger
}

// NewRedisNotifier creates a RedisNotifier on the given channel.
func NewRedisNotifier(client *redis.Client, channel string, log zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// Notify publishes the issue id on the channel.
func (n *RedisNotifier) Notify(ctx context.Context, issueID uuid.UUID) error {
	if err := n.client.Publish(ctx, n.channel, issueID.String()).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	return nil
}

// Listen subscribes to the channel and broadcasts on wake for every message
// until ctx is cancelled. It returns once the subscription is confirmed; the
// forwarding runs in a background goroutine.
func (n *RedisNotifier) Listen(ctx context.Context, wake *Wakeup) error {
	pubsub := n.client.Subscribe(ctx, n.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe to %s: %w", n.channel, err)
	}

	go func() {
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
				n.log.Debug().Str("issue_id", msg.Payload).Msg("publish notification received")
				wake.Broadcast()
			}
		}
	}()

	n.log.Info().Str("channel", n.channel).Msg("listening for publish notifications")
	return nil
}
