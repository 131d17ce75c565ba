package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the index in a Redis set so a fleet of fetchers shares one
// coverage scan instead of each rebuilding from the manifest.
type RedisStore struct {
	rdb *redis.Client
	key string
}

func NewRedisStore(rdb *redis.Client, source string, resolution int) *RedisStore {
	return &RedisStore{
		rdb: rdb,
		key: fmt.Sprintf("hgtindex:%s%d:v%d", strings.ToLower(source), resolution, Version),
	}
}

// Dial connects and pings a Redis server.
func Dial(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func (s *RedisStore) Load(ctx context.Context) ([]string, error) {
	names, err := s.rdb.SMembers(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", s.key, err)
	}
	if len(names) == 0 {
		return nil, ErrNoIndex
	}
	sort.Strings(names)
	return names, nil
}

func (s *RedisStore) Save(ctx context.Context, names []string) error {
	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, s.key)
	// keep pipeline commands bounded
	const chunk = 4096
	for i := 0; i < len(names); i += chunk {
		end := min(i+chunk, len(names))
		members := make([]interface{}, 0, end-i)
		for _, n := range names[i:end] {
			members = append(members, n)
		}
		pipe.SAdd(ctx, s.key, members...)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis SADD %q (%d members): %w", s.key, len(names), err)
	}
	return nil
}

func (s *RedisStore) Drop(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis DEL %q: %w", s.key, err)
	}
	return nil
}
