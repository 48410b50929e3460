package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"agri-auction/internal/domain"

	"github.com/go-redis/redis/v8"
)

// RedisStateCache mirrors committed auction state for display consumers.
// It is never consulted when validating bids.
type RedisStateCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStateCache(client *redis.Client, ttl time.Duration) *RedisStateCache {
	return &RedisStateCache{client: client, ttl: ttl}
}

func stateKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:state", auctionID)
}

func (r *RedisStateCache) SetAuctionState(ctx context.Context, state *domain.AuctionState) error {
	key := stateKey(state.AuctionID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"status", int(state.Status),
		"current_price", strconv.FormatFloat(state.CurrentPrice, 'f', 2, 64),
		"leader_id", state.LeaderID,
		"updated_at", state.UpdatedAt.Unix(),
	)
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStateCache) GetAuctionState(ctx context.Context, auctionID string) (*domain.AuctionState, error) {
	result, err := r.client.HGetAll(ctx, stateKey(auctionID)).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, domain.ErrAuctionNotFound
	}

	status, err := strconv.Atoi(result["status"])
	if err != nil {
		return nil, fmt.Errorf("redis: bad status for auction %s: %w", auctionID, err)
	}
	price, err := strconv.ParseFloat(result["current_price"], 64)
	if err != nil {
		return nil, fmt.Errorf("redis: bad price for auction %s: %w", auctionID, err)
	}
	updated, _ := strconv.ParseInt(result["updated_at"], 10, 64)

	return &domain.AuctionState{
		AuctionID:    auctionID,
		Status:       domain.AuctionStatus(status),
		CurrentPrice: price,
		LeaderID:     result["leader_id"],
		UpdatedAt:    time.Unix(updated, 0),
	}, nil
}

// IsMiss reports whether err means the state was not cached.
func IsMiss(err error) bool {
	return errors.Is(err, domain.ErrAuctionNotFound) || errors.Is(err, redis.Nil)
}
