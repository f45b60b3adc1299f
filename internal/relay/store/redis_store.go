package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cb3tech/moshcast-live/internal/config"
	"github.com/cb3tech/moshcast-live/internal/domain"
)

// Redis key layout:
//   {prefix}{host_id}   STRING<snapshot JSON>, TTL-refreshed on save
//   {prefix}active      SET<host_id>
//
// The TTL doubles as a liveness check: a relay that dies without
// cleaning up leaves a key that simply expires.

type redisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to Redis and verifies it is reachable.
func NewRedisStore(cfg config.RedisConfig, ttl time.Duration) (SessionStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "moshcast:session:"
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}

	return &redisStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}, nil
}

func (s *redisStore) sessionKey(hostID string) string {
	return s.prefix + hostID
}

func (s *redisStore) activeKey() string {
	return s.prefix + "active"
}

func (s *redisStore) Save(ctx context.Context, snap *domain.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(snap.HostID), data, s.ttl)
	pipe.SAdd(ctx, s.activeKey(), snap.HostID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *redisStore) Get(ctx context.Context, hostID string) (*domain.Snapshot, error) {
	val, err := s.client.Get(ctx, s.sessionKey(hostID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *redisStore) Delete(ctx context.Context, hostID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.sessionKey(hostID))
	pipe.SRem(ctx, s.activeKey(), hostID)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) ListActive(ctx context.Context) ([]*domain.Snapshot, error) {
	hostIDs, err := s.client.SMembers(ctx, s.activeKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*domain.Snapshot, 0, len(hostIDs))
	for _, hostID := range hostIDs {
		snap, err := s.Get(ctx, hostID)
		if err != nil {
			return nil, err
		}
		if snap == nil {
			// The snapshot expired; the set entry is stale.
			s.client.SRem(ctx, s.activeKey(), hostID)
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
