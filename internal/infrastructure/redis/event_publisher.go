package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"agri-auction/internal/domain"

	"github.com/go-redis/redis/v8"
)

// NotificationPublisher implements domain.Notifier over Redis pub/sub.
type NotificationPublisher struct {
	client  *redis.Client
	channel string
}

func NewNotificationPublisher(client *redis.Client, channel string) *NotificationPublisher {
	return &NotificationPublisher{client: client, channel: channel}
}

func (p *NotificationPublisher) Notify(ctx context.Context, notification *domain.Notification) error {
	payload, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("redis: encode notification: %w", err)
	}

	return p.client.Publish(ctx, p.channel, payload).Err()
}
