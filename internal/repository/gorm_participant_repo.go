package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// GormParticipantRepository implements ParticipantRepository using GORM.
type GormParticipantRepository struct {
	db *gorm.DB
}

func NewGormParticipantRepository(db *gorm.DB) *GormParticipantRepository {
	return &GormParticipantRepository{db: db}
}

// GetByNickname retrieves a participant of a room by nickname.
func (r *GormParticipantRepository) GetByNickname(ctx context.Context, roomID, nickname string) (*domain.Participant, error) {
	l := log.Ctx(ctx)

	var model domain.ParticipantModel
	result := r.db.WithContext(ctx).
		Where("room_id = ? AND nickname = ?", roomID, nickname).
		First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrParticipantNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldRoomID, roomID).Msg("failed to get participant")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// Create registers a participant.
func (r *GormParticipantRepository) Create(ctx context.Context, participant *domain.Participant) error {
	l := log.Ctx(ctx)

	participant.ID = uuid.New().String()

	model := domain.ParticipantToModel(participant)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrNicknameTaken
		}
		l.Error().Err(err).Str(log.FieldRoomID, participant.RoomID).Msg("failed to create participant in db")
		return err
	}

	participant.CreatedAt = model.CreatedAt
	l.Debug().
		Str(log.FieldRoomID, participant.RoomID).
		Str(log.FieldParticipantID, participant.ID).
		Msg("participant created in db")
	return nil
}
