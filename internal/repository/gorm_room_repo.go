package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

// GormRoomRepository implements RoomRepository using GORM.
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository creates a new GORM-based room repository.
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	return &GormRoomRepository{db: db}
}

// Create creates a new room.
func (r *GormRoomRepository) Create(ctx context.Context, room *domain.Room) error {
	l := log.Ctx(ctx)

	room.ID = uuid.New().String()

	model := domain.RoomToModel(room)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if isDuplicateKey(err) {
			return ErrSlugTaken
		}
		l.Error().Err(err).Msg("failed to create room in db")
		return err
	}

	room.CreatedAt = model.CreatedAt.UTC()
	l.Debug().Str(log.FieldRoomID, room.ID).Msg("room created in db")
	return nil
}

// GetBySlug retrieves a room by its public slug.
func (r *GormRoomRepository) GetBySlug(ctx context.Context, slug string) (*domain.Room, error) {
	l := log.Ctx(ctx)

	var model domain.RoomModel
	result := r.db.WithContext(ctx).First(&model, "slug = ?", slug)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRoomNotFound
		}
		l.Error().Err(result.Error).Msg("failed to get room by slug")
		return nil, result.Error
	}

	room, err := model.ToDomain()
	if err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, model.ID).Msg("corrupt room record")
		return nil, err
	}
	return room, nil
}
