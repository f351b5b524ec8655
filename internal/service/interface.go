package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
)

// RoomService defines the interface for room business logic.
type RoomService interface {
	CreateRoom(ctx context.Context, req *domain.CreateRoomRequest) (*domain.CreateRoomResponse, error)
	GetRoom(ctx context.Context, slug string) (*domain.Room, error)
}

// JoinService registers or authenticates a participant and issues a token.
type JoinService interface {
	Join(ctx context.Context, roomSlug string, req *domain.JoinRequest) (*domain.JoinResponse, error)
}

// TokenIssuer signs session tokens.
type TokenIssuer interface {
	Issue(roomID, participantID, nickname string) (string, error)
}

// PasswordHasher hashes and checks participant passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) bool
}
