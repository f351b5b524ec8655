package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/repository"
)

type fakeRoomRepo struct {
	mu     sync.Mutex
	rooms  map[string]domain.Room
	gets   int
	getErr error
}

func newFakeRoomRepo() *fakeRoomRepo {
	return &fakeRoomRepo{rooms: make(map[string]domain.Room)}
}

func (r *fakeRoomRepo) Create(_ context.Context, room *domain.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rooms[room.Slug]; ok {
		return repository.ErrSlugTaken
	}
	room.ID = uuid.New().String()
	room.CreatedAt = time.Now().UTC()
	r.rooms[room.Slug] = *room
	return nil
}

func (r *fakeRoomRepo) GetBySlug(_ context.Context, slug string) (*domain.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gets++
	if r.getErr != nil {
		return nil, r.getErr
	}
	room, ok := r.rooms[slug]
	if !ok {
		return nil, repository.ErrRoomNotFound
	}
	return &room, nil
}

type fakeParticipantRepo struct {
	mu           sync.Mutex
	participants map[string]domain.Participant
	// hideNext makes the next GetByNickname miss, simulating a concurrent
	// first join that has not been observed yet.
	hideNext bool
}

func newFakeParticipantRepo() *fakeParticipantRepo {
	return &fakeParticipantRepo{participants: make(map[string]domain.Participant)}
}

func (r *fakeParticipantRepo) key(roomID, nickname string) string {
	return roomID + "/" + nickname
}

func (r *fakeParticipantRepo) GetByNickname(_ context.Context, roomID, nickname string) (*domain.Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.hideNext {
		r.hideNext = false
		return nil, repository.ErrParticipantNotFound
	}
	p, ok := r.participants[r.key(roomID, nickname)]
	if !ok {
		return nil, repository.ErrParticipantNotFound
	}
	return &p, nil
}

func (r *fakeParticipantRepo) Create(_ context.Context, p *domain.Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := r.key(p.RoomID, p.Nickname)
	if _, ok := r.participants[k]; ok {
		return repository.ErrNicknameTaken
	}
	p.ID = uuid.New().String()
	r.participants[k] = *p
	return nil
}

// seqSlugs returns the given slugs in order, then fails.
type seqSlugs struct {
	slugs []string
	calls int
}

func (g *seqSlugs) Generate() (string, error) {
	if g.calls >= len(g.slugs) {
		return "", errors.New("no more slugs")
	}
	s := g.slugs[g.calls]
	g.calls++
	return s, nil
}
