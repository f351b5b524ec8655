package repository

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrSlugTaken           = errors.New("room slug already taken")
	ErrNicknameTaken       = errors.New("nickname already taken in room")
)

// RoomRepository defines the interface for room data persistence.
type RoomRepository interface {
	// Create stores room, assigning its ID and CreatedAt. It returns
	// ErrSlugTaken when the slug collides with an existing room.
	Create(ctx context.Context, room *domain.Room) error
	GetBySlug(ctx context.Context, slug string) (*domain.Room, error)
}

// ParticipantRepository defines the interface for participant persistence.
type ParticipantRepository interface {
	GetByNickname(ctx context.Context, roomID, nickname string) (*domain.Participant, error)
	// Create returns ErrNicknameTaken when (room, nickname) already exists.
	Create(ctx context.Context, participant *domain.Participant) error
}
