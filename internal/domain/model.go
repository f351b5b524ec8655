package domain

import "time"

// RoomModel is the GORM model for rooms table.
type RoomModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	Slug      string    `gorm:"type:varchar(10);uniqueIndex;not null"`
	Title     string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for RoomModel.
func (RoomModel) TableName() string {
	return "rooms"
}

// ToDomain converts RoomModel to domain Room. A zero timestamp means the
// row was written outside this service without one.
func (m *RoomModel) ToDomain() (*Room, error) {
	if m.CreatedAt.IsZero() {
		return nil, ErrInvalidRoomRecord
	}
	return &Room{
		ID:        m.ID,
		Slug:      m.Slug,
		Title:     m.Title,
		CreatedAt: m.CreatedAt.UTC(),
	}, nil
}

// RoomToModel converts domain Room to RoomModel.
func RoomToModel(r *Room) *RoomModel {
	return &RoomModel{
		ID:        r.ID,
		Slug:      r.Slug,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
	}
}

// ParticipantModel is the GORM model for participants table.
type ParticipantModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	RoomID       string    `gorm:"type:varchar(36);not null;uniqueIndex:idx_participants_room_nickname"`
	Nickname     string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_participants_room_nickname"`
	PasswordHash string    `gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
}

// TableName specifies the table name for ParticipantModel.
func (ParticipantModel) TableName() string {
	return "participants"
}

func (m *ParticipantModel) ToDomain() *Participant {
	return &Participant{
		ID:           m.ID,
		RoomID:       m.RoomID,
		Nickname:     m.Nickname,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func ParticipantToModel(p *Participant) *ParticipantModel {
	return &ParticipantModel{
		ID:           p.ID,
		RoomID:       p.RoomID,
		Nickname:     p.Nickname,
		PasswordHash: p.PasswordHash,
		CreatedAt:    p.CreatedAt,
	}
}
