package cache

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

type RoomCacheResult struct {
	Room domain.Room `json:"room"`
}

// RoomCache stores rooms by slug. Rooms never change after creation, so
// entries are only ever expired, never invalidated.
type RoomCache interface {
	Get(ctx context.Context, key string) (*RoomCacheResult, error)
	Set(ctx context.Context, key string, result *RoomCacheResult, ttl time.Duration) error
	BuildKeyBySlug(slug string) string
}
