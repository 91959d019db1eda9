package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/telhawk-systems/openport/internal/models"
)

// Store is the bounded, time-ordered history of completed quota windows.
type Store interface {
	// Add inserts a sample scored by its window end.
	Add(ctx context.Context, sample models.QuotaSample) error

	// TrimToNewest removes all but the n highest-ranked (most recent) samples.
	TrimToNewest(ctx context.Context, n int64) error

	// Samples returns the stored history, oldest first.
	Samples(ctx context.Context) ([]models.QuotaSample, error)

	// Count returns the number of stored samples.
	Count(ctx context.Context) (int64, error)
}

// RedisStore keeps quota samples in a Redis sorted set.
type RedisStore struct {
	client redis.Cmdable
	key    string
}

// NewRedisStore creates a store backed by the sorted set at key.
func NewRedisStore(client redis.Cmdable, key string) *RedisStore {
	if key == "" {
		key = DefaultKey
	}
	return &RedisStore{client: client, key: key}
}

// Add implements Store. The member carries the window end so that two
// windows with identical usage never collapse into one member.
func (s *RedisStore) Add(ctx context.Context, sample models.QuotaSample) error {
	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal quota sample: %w", err)
	}

	z := redis.Z{Score: float64(sample.WindowEnd), Member: string(data)}
	if err := s.client.ZAdd(ctx, s.key, z).Err(); err != nil {
		return fmt.Errorf("add quota sample: %w", err)
	}
	return nil
}

// TrimToNewest implements Store with a single ZREMRANGEBYRANK, which Redis
// applies atomically.
func (s *RedisStore) TrimToNewest(ctx context.Context, n int64) error {
	if n < 0 {
		n = 0
	}
	if err := s.client.ZRemRangeByRank(ctx, s.key, 0, -(n + 1)).Err(); err != nil {
		return fmt.Errorf("trim quota samples: %w", err)
	}
	return nil
}

// Samples implements Store.
func (s *RedisStore) Samples(ctx context.Context) ([]models.QuotaSample, error) {
	entries, err := s.client.ZRangeWithScores(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list quota samples: %w", err)
	}

	samples := make([]models.QuotaSample, 0, len(entries))
	for _, z := range entries {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		var sample models.QuotaSample
		if err := json.Unmarshal([]byte(member), &sample); err != nil {
			continue // Skip members written by other tools
		}
		sample.WindowEnd = int64(z.Score)
		samples = append(samples, sample)
	}

	return samples, nil
}

// Count implements Store.
func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	n, err := s.client.ZCard(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("count quota samples: %w", err)
	}
	return n, nil
}
