package redis

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"agri-auction/internal/domain"

	"github.com/go-redis/redis/v8"
)

const incrementRulesKey = "bid_increment_rules"

// DefaultIncrementTiers apply when nothing is stored yet.
func DefaultIncrementTiers() *domain.IncrementTiers {
	return &domain.IncrementTiers{
		Rules: map[string]float64{
			"0-100":   5.0,
			"100-500": 10.0,
			"500+":    25.0,
		},
	}
}

// RedisIncrementRules provides tiered default minimum increments for
// auctions created without an explicit one.
type RedisIncrementRules struct {
	client *redis.Client
	mu     sync.RWMutex
	rules  *domain.IncrementTiers
}

func NewRedisIncrementRules(client *redis.Client) *RedisIncrementRules {
	return &RedisIncrementRules{
		client: client,
	}
}

func (v *RedisIncrementRules) LoadRules(ctx context.Context) error {
	data, err := v.client.Get(ctx, incrementRulesKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			v.setRules(DefaultIncrementTiers())
			return v.saveRules(ctx)
		}
		return err
	}

	var rules domain.IncrementTiers
	if err := json.Unmarshal([]byte(data), &rules); err != nil {
		return err
	}

	v.setRules(&rules)
	return nil
}

func (v *RedisIncrementRules) setRules(rules *domain.IncrementTiers) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.rules = rules
}

func (v *RedisIncrementRules) saveRules(ctx context.Context) error {
	v.mu.RLock()
	data, err := json.Marshal(v.rules)
	v.mu.RUnlock()
	if err != nil {
		return err
	}

	return v.client.Set(ctx, incrementRulesKey, string(data), 0).Err()
}

func (v *RedisIncrementRules) GetIncrementRule(amount float64) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if v.rules == nil {
		return 5.0 // default
	}
	if amount < 100 {
		return v.rules.Rules["0-100"]
	} else if amount < 500 {
		return v.rules.Rules["100-500"]
	}
	return v.rules.Rules["500+"]
}
