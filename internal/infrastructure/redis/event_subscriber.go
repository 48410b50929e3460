package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"agri-auction/internal/domain"
	"agri-auction/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type NotificationSubscriber struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

func NewNotificationSubscriber(client *redis.Client, channel string, log logger.Logger) *NotificationSubscriber {
	return &NotificationSubscriber{
		client:  client,
		channel: channel,
		log:     log,
	}
}

// Subscribe blocks, handing each notification to handler until ctx is done.
func (r *NotificationSubscriber) Subscribe(ctx context.Context, handler domain.NotificationHandler) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for confirmation so no message published after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis: subscribe %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	r.log.Info("Subscribed to notifications", "channel", r.channel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			notification, err := decodeNotification(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse notification", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(notification); err != nil {
				r.log.Error("Failed to handle notification", "user_id", notification.UserID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Notification subscriber stopped")
			return ctx.Err()
		}
	}
}

func decodeNotification(payload string) (*domain.Notification, error) {
	var n domain.Notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, err
	}
	if n.UserID == "" {
		return nil, errors.New("notification without user_id")
	}
	return &n, nil
}
