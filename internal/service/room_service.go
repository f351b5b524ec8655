package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/cache"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/repository"
	"github.com/weiawesome/wes-io-live/collab-service/internal/slug"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrSlugExhausted = errors.New("could not allocate a unique room slug")
)

// roomServiceImpl implements RoomService interface.
type roomServiceImpl struct {
	repo        repository.RoomRepository
	slugs       slug.Generator
	cache       cache.RoomCache
	cacheTTL    time.Duration
	maxAttempts int
}

// NewRoomService creates a new room service. roomCache may be nil.
func NewRoomService(repo repository.RoomRepository, slugs slug.Generator, roomCache cache.RoomCache, cacheTTL time.Duration, maxAttempts int) RoomService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &roomServiceImpl{
		repo:        repo,
		slugs:       slugs,
		cache:       roomCache,
		cacheTTL:    cacheTTL,
		maxAttempts: maxAttempts,
	}
}

// CreateRoom stores a room under a fresh slug, regenerating the slug on
// collision up to maxAttempts times.
func (s *roomServiceImpl) CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.CreateRoomResponse, error) {
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		roomSlug, err := s.slugs.Generate()
		if err != nil {
			return nil, err
		}
		ctx := log.WithRoom(ctx, roomSlug)
		l := log.Ctx(ctx)

		room := &domain.Room{
			Slug:  roomSlug,
			Title: req.Title,
		}
		err = s.repo.Create(ctx, room)
		if errors.Is(err, repository.ErrSlugTaken) {
			l.Warn().Int("attempt", attempt).Msg("room slug collision, regenerating")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.setCache(ctx, room)
		audit.Log(ctx, audit.ActionCreateRoom, "room created")
		return &domain.CreateRoomResponse{RoomSlug: room.Slug}, nil
	}

	return nil, fmt.Errorf("%w after %d attempts", ErrSlugExhausted, s.maxAttempts)
}

// GetRoom retrieves a room by slug, reading through the cache. Callers put
// the slug on the context logger.
func (s *roomServiceImpl) GetRoom(ctx context.Context, roomSlug string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, s.cache.BuildKeyBySlug(roomSlug))
		if err == nil {
			room := cached.Room
			return &room, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			l.Warn().Err(err).Msg("room cache read failed")
		}
	}

	room, err := s.repo.GetBySlug(ctx, roomSlug)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	s.setCache(ctx, room)
	return room, nil
}

func (s *roomServiceImpl) setCache(ctx context.Context, room *domain.Room) {
	if s.cache == nil {
		return
	}
	key := s.cache.BuildKeyBySlug(room.Slug)
	if err := s.cache.Set(ctx, key, &cache.RoomCacheResult{Room: *room}, s.cacheTTL); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("room cache write failed")
	}
}
