package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

const scanBatch = 100

// RedisRegistry stores one expiring key per relay session. Keys owned by
// this process are refreshed by a heartbeat so sessions of a crashed
// instance age out on their own.
type RedisRegistry struct {
	client            *redis.Client
	prefix            string
	keyTTL            time.Duration
	heartbeatInterval time.Duration
	managedKeys       map[string]struct{}
	mu                sync.RWMutex
	cancel            context.CancelFunc
}

func NewRedisRegistry(client *redis.Client, prefix string, keyTTL, heartbeatInterval time.Duration) *RedisRegistry {
	return &RedisRegistry{
		client:            client,
		prefix:            prefix,
		keyTTL:            keyTTL,
		heartbeatInterval: heartbeatInterval,
		managedKeys:       make(map[string]struct{}),
	}
}

func (r *RedisRegistry) keyFor(roomSlug, sessionID string) string {
	return fmt.Sprintf("%s:room:%s:session:%s", r.prefix, roomSlug, sessionID)
}

func (r *RedisRegistry) Register(ctx context.Context, roomSlug, sessionID, participantID string) error {
	key := r.keyFor(roomSlug, sessionID)

	if err := r.client.Set(ctx, key, participantID, r.keyTTL).Err(); err != nil {
		return fmt.Errorf("failed to register relay session: %w", err)
	}

	r.mu.Lock()
	r.managedKeys[key] = struct{}{}
	r.mu.Unlock()

	l := log.Ctx(ctx)
	l.Debug().Msg("registered relay session")
	return nil
}

func (r *RedisRegistry) Deregister(ctx context.Context, roomSlug, sessionID string) error {
	key := r.keyFor(roomSlug, sessionID)

	r.mu.Lock()
	delete(r.managedKeys, key)
	r.mu.Unlock()

	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to deregister relay session: %w", err)
	}

	l := log.Ctx(ctx)
	l.Debug().Msg("deregistered relay session")
	return nil
}

// Count returns the number of live sessions of a room across all instances.
func (r *RedisRegistry) Count(ctx context.Context, roomSlug string) (int, error) {
	pattern := r.keyFor(roomSlug, "*")

	count := 0
	iter := r.client.Scan(ctx, 0, pattern, scanBatch).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to count relay sessions: %w", err)
	}
	return count, nil
}

func (r *RedisRegistry) StartHeartbeat(ctx context.Context) error {
	if r.heartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %s", r.heartbeatInterval)
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	go r.heartbeatLoop(ctx)
	l := log.L()
	l.Info().Dur("interval", r.heartbeatInterval).Dur("ttl", r.keyTTL).Msg("registry heartbeat started")
	return nil
}

func (r *RedisRegistry) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(r.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.refreshKeys(ctx)
		}
	}
}

func (r *RedisRegistry) refreshKeys(ctx context.Context) {
	r.mu.RLock()
	keys := make([]string, 0, len(r.managedKeys))
	for k := range r.managedKeys {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	if len(keys) == 0 {
		return
	}

	pipe := r.client.Pipeline()
	for _, key := range keys {
		pipe.Expire(ctx, key, r.keyTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		l := log.L()
		l.Error().Err(err).Int("keys", len(keys)).Msg("failed to refresh relay session keys")
	}
}

func (r *RedisRegistry) StopHeartbeat() {
	if r.cancel != nil {
		r.cancel()
	}
}
