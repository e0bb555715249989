package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tranduckhuy/eduva-backend-sub005/pkg/models"
)

// ChannelPrefix namespaces the per-user Redis channels.
const ChannelPrefix = "notifications:"

// UserChannel returns the Redis channel carrying userID's notifications.
func UserChannel(userID string) string {
	return ChannelPrefix + userID
}

// RedisPublisher is the part of *redis.Client used by the gateway.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisGateway publishes notifications to Redis so that whichever replica
// holds the user's connection can deliver them.
type RedisGateway struct {
	client RedisPublisher
	logger zerolog.Logger
}

func NewRedisGateway(client RedisPublisher, logger zerolog.Logger) *RedisGateway {
	return &RedisGateway{
		client: client,
		logger: logger.With().Str("component", "notify_redis").Logger(),
	}
}

func (g *RedisGateway) NotifyUser(ctx context.Context, userID string, event models.Event) error {
	data, err := Encode(event)
	if err != nil {
		return err
	}
	receivers, err := g.client.Publish(ctx, UserChannel(userID), data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish notification for user %s: %w", userID, err)
	}
	g.logger.Debug().Str("user_id", userID).Int64("receivers", receivers).Str("event", event.EventName()).Msg("notification published")
	return nil
}

// Relay feeds notifications published on Redis into the local Hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	logger zerolog.Logger
}

func NewRelay(client *redis.Client, hub *Hub, logger zerolog.Logger) *Relay {
	return &Relay{
		client: client,
		hub:    hub,
		logger: logger.With().Str("component", "notify_relay").Logger(),
	}
}

// Run pattern-subscribes to every user channel until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, ChannelPrefix+"*")
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to notifications: %w", err)
	}
	r.logger.Info().Str("pattern", ChannelPrefix+"*").Msg("notification relay started")

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("notification subscription closed")
			}
			r.dispatch(msg)
		}
	}
}

func (r *Relay) dispatch(msg *redis.Message) int {
	userID := strings.TrimPrefix(msg.Channel, ChannelPrefix)
	if userID == "" || userID == msg.Channel {
		r.logger.Warn().Str("channel", msg.Channel).Msg("ignoring message on unexpected channel")
		return 0
	}
	return r.hub.Deliver(userID, []byte(msg.Payload))
}
