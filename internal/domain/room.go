package domain

import (
	"errors"
	"time"
)

// ErrInvalidRoomRecord is returned when a stored room carries no usable
// creation timestamp.
var ErrInvalidRoomRecord = errors.New("room record has no valid created_at")

// Room is a collaboration room addressed by its public slug.
type Room struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// Participant is a nickname registered inside one room.
type Participant struct {
	ID           string
	RoomID       string
	Nickname     string
	PasswordHash string
	CreatedAt    time.Time
}

// CreateRoomRequest represents a create room request.
type CreateRoomRequest struct {
	Title string `json:"title" binding:"required,min=1,max=255"`
}

// CreateRoomResponse carries the slug of a new room.
type CreateRoomResponse struct {
	RoomSlug string `json:"room_slug"`
}

// RoomInfoResponse is the public view of a room.
type RoomInfoResponse struct {
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
}

// JoinRequest represents a join request. Passwords longer than 72 bytes
// cannot be hashed and are rejected here.
type JoinRequest struct {
	Nickname string `json:"nickname" binding:"required,min=1,max=50"`
	Password string `json:"password" binding:"required,min=4,max=72"`
}

// JoinResponse carries the issued token.
type JoinResponse struct {
	Token    string `json:"token"`
	Nickname string `json:"nickname"`
}

// MeResponse describes the holder of a token.
type MeResponse struct {
	RoomID        string    `json:"room_id"`
	RoomSlug      string    `json:"room_slug"`
	ParticipantID string    `json:"participant_id"`
	Nickname      string    `json:"nickname"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// SessionsResponse reports how many relay sessions are live for a room.
type SessionsResponse struct {
	RoomSlug string `json:"room_slug"`
	Active   int    `json:"active"`
}

// ToInfoResponse converts a Room to its public view.
func (r *Room) ToInfoResponse() RoomInfoResponse {
	return RoomInfoResponse{
		Title:     r.Title,
		CreatedAt: r.CreatedAt.UTC(),
	}
}
