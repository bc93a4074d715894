package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const relayChannelPrefix = "broadcast:"

// Relay публикует сообщения через Redis pub/sub, а каждый экземпляр сервиса
// доставляет полученное своим локальным подписчикам через Hub.
type Relay struct {
	client *redis.Client
	hub    *Hub
	logger *logrus.Logger
}

func NewRelay(client *redis.Client, hub *Hub, logger *logrus.Logger) *Relay {
	return &Relay{
		client: client,
		hub:    hub,
		logger: logger,
	}
}

// Publish отправляет сообщение всем экземплярам (включая текущий)
func (r *Relay) Publish(ctx context.Context, msg Message) error {
	if _, err := ParseChannel(string(msg.Channel)); err != nil {
		return err
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal broadcast message: %w", err)
	}
	if err := r.client.Publish(ctx, relayChannelPrefix+string(msg.Channel), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish broadcast message to Redis: %w", err)
	}
	return nil
}

// Start подписывается на все каналы и дожидается подтверждения подписки,
// после чего читает сообщения в отдельной горутине до отмены ctx.
func (r *Relay) Start(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, relayChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("failed to subscribe to broadcast relay: %w", err)
	}

	r.logger.Info("Starting broadcast relay...")
	go r.run(ctx, pubsub)
	return nil
}

func (r *Relay) run(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Stopping broadcast relay.")
			return
		case raw, ok := <-messages:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				r.logger.WithError(err).WithField("redis_channel", raw.Channel).Error("Failed to unmarshal relayed message")
				continue
			}
			if _, err := r.hub.Broadcast(ctx, msg); err != nil {
				r.logger.WithError(err).WithField("channel", msg.Channel).Warn("Failed to broadcast relayed message")
			}
		}
	}
}
