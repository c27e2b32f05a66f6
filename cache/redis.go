/*
Package cache keeps batch rosters in Redis.

KEYS:
  <prefix>batch:<batchID>:roster   JSON array of domain.Student, with TTL

  Everything derived from a batch lives under <prefix>batch:<batchID>:, so
  invalidation is a SCAN + DEL over that pattern.

MISSES:
  GetRoster reports a miss with ok=false and a nil error. Callers fall back
  to the store and call SetRoster.

SEE ALSO:
  - duplicates/resolve.go: invalidates batches touched by a resolution
  - api/handlers.go: roster endpoint reads through the cache
*/
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/warp/enrollment-engine/domain"
)

// Roster is the cache surface the HTTP layer uses.
type Roster interface {
	GetRoster(ctx context.Context, batchID string) ([]domain.Student, bool, error)
	SetRoster(ctx context.Context, batchID string, students []domain.Student) error
	InvalidateBatches(ctx context.Context, batchIDs []string) error
}

const (
	DefaultPrefix = "enrollment:"
	DefaultTTL    = 5 * time.Minute

	scanCount = 100
)

// Redis is a Roster backed by a go-redis client.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ Roster = (*Redis)(nil)

func NewRedis(client *redis.Client, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func (r *Redis) batchPrefix(batchID string) string {
	return fmt.Sprintf("%sbatch:%s:", r.prefix, batchID)
}

func (r *Redis) rosterKey(batchID string) string {
	return r.batchPrefix(batchID) + "roster"
}

func (r *Redis) GetRoster(ctx context.Context, batchID string) ([]domain.Student, bool, error) {
	val, err := r.client.Get(ctx, r.rosterKey(batchID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get roster for batch %s: %w", batchID, err)
	}

	var students []domain.Student
	if err := json.Unmarshal([]byte(val), &students); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal roster for batch %s: %w", batchID, err)
	}
	return students, true, nil
}

func (r *Redis) SetRoster(ctx context.Context, batchID string, students []domain.Student) error {
	if students == nil {
		students = []domain.Student{}
	}
	data, err := json.Marshal(students)
	if err != nil {
		return fmt.Errorf("failed to marshal roster: %w", err)
	}
	if err := r.client.Set(ctx, r.rosterKey(batchID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set roster for batch %s: %w", batchID, err)
	}
	return nil
}

// InvalidateBatches deletes every key under each batch's prefix.
func (r *Redis) InvalidateBatches(ctx context.Context, batchIDs []string) error {
	deleted := 0
	for _, id := range batchIDs {
		pattern := r.batchPrefix(id) + "*"
		iter := r.client.Scan(ctx, 0, pattern, scanCount).Iterator()

		var keys []string
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		if err := iter.Err(); err != nil {
			return fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		if len(keys) == 0 {
			continue
		}
		n, err := r.client.Del(ctx, keys...).Result()
		if err != nil {
			return fmt.Errorf("failed to delete keys for batch %s: %w", id, err)
		}
		deleted += int(n)
	}

	r.logger.Debug("invalidated batch caches",
		zap.Strings("batch_ids", batchIDs),
		zap.Int("deleted_keys", deleted),
	)
	return nil
}

// Nop is used when no Redis is configured. Every read misses.
type Nop struct{}

var _ Roster = Nop{}

func (Nop) GetRoster(context.Context, string) ([]domain.Student, bool, error) { return nil, false, nil }
func (Nop) SetRoster(context.Context, string, []domain.Student) error          { return nil }
func (Nop) InvalidateBatches(context.Context, []string) error                  { return nil }
