package services

import (
	"context"

	"agri-auction/internal/domain"
	"agri-auction/pkg/logger"
)

// NotificationRelay forwards notifications from the broker to the
// recipients' live websocket connections.
type NotificationRelay struct {
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewNotificationRelay(connectionManager domain.ConnectionManager, log logger.Logger) *NotificationRelay {
	return &NotificationRelay{
		connectionManager: connectionManager,
		log:               log,
	}
}

// Start blocks until ctx is cancelled or the subscription fails.
func (r *NotificationRelay) Start(ctx context.Context, subscriber domain.NotificationSubscriber) error {
	r.log.Info("Starting notification relay")
	return subscriber.Subscribe(ctx, r.Handle)
}

// Handle delivers one notification. A recipient with no open connection is
// not an error; the notification is simply not pushed.
func (r *NotificationRelay) Handle(notification *domain.Notification) error {
	conns := r.connectionManager.GetConnectionsForUser(notification.UserID)
	if len(conns) == 0 {
		r.log.Debug("No live connection for notification",
			"user_id", notification.UserID, "type", notification.Type)
		return nil
	}

	if err := r.connectionManager.NotifyUser(notification.UserID, map[string]interface{}{
		"type":         "notification",
		"notification": notification,
	}); err != nil {
		r.log.Error("Failed to push notification", "user_id", notification.UserID, "error", err)
		return err
	}
	return nil
}
