package services

import (
	"context"
	"time"

	"agri-auction/internal/domain"
	"agri-auction/pkg/logger"
)

// notifyBestEffort sends every notification and only logs failures; a
// committed bid or settlement is never undone because delivery failed.
func notifyBestEffort(ctx context.Context, notifier domain.Notifier, log logger.Logger, notifications ...*domain.Notification) {
	if notifier == nil {
		return
	}
	for _, n := range notifications {
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now()
		}
		if err := notifier.Notify(ctx, n); err != nil {
			log.Warn("Failed to deliver notification",
				"user_id", n.UserID, "type", n.Type, "related_id", n.RelatedID, "error", err)
		}
	}
}

func cacheBestEffort(ctx context.Context, cache domain.AuctionStateCache, log logger.Logger, state *domain.AuctionState) {
	if cache == nil {
		return
	}
	if err := cache.SetAuctionState(ctx, state); err != nil {
		log.Warn("Failed to cache auction state", "auction_id", state.AuctionID, "error", err)
	}
}

// LogNotifier is the notification port used when no broker is configured.
type LogNotifier struct {
	log logger.Logger
}

func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, notification *domain.Notification) error {
	n.log.Info("Notification",
		"user_id", notification.UserID,
		"title", notification.Title,
		"message", notification.Message,
		"type", notification.Type,
		"related_id", notification.RelatedID)
	return nil
}
