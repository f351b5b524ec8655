package service

import (
	"context"
	"errors"

	"github.com/weiawesome/wes-io-live/collab-service/internal/audit"
	"github.com/weiawesome/wes-io-live/collab-service/internal/domain"
	"github.com/weiawesome/wes-io-live/collab-service/internal/repository"
	"github.com/weiawesome/wes-io-live/collab-service/pkg/log"
)

var ErrBadCredentials = errors.New("invalid nickname or password")

type joinServiceImpl struct {
	rooms        RoomService
	participants repository.ParticipantRepository
	hasher       PasswordHasher
	tokens       TokenIssuer
}

// NewJoinService creates the join flow: the first join of a nickname in a
// room registers it, later joins must present the same password.
func NewJoinService(rooms RoomService, participants repository.ParticipantRepository, hasher PasswordHasher, tokens TokenIssuer) JoinService {
	return &joinServiceImpl{
		rooms:        rooms,
		participants: participants,
		hasher:       hasher,
		tokens:       tokens,
	}
}

func (s *joinServiceImpl) Join(ctx context.Context, roomSlug string, req *domain.JoinRequest) (*domain.JoinResponse, error) {
	room, err := s.rooms.GetRoom(ctx, roomSlug)
	if err != nil {
		return nil, err
	}

	participant, err := s.participants.GetByNickname(ctx, room.ID, req.Nickname)
	switch {
	case err == nil:
		if err := s.authenticate(ctx, participant, req.Password); err != nil {
			return nil, err
		}
	case errors.Is(err, repository.ErrParticipantNotFound):
		participant, err = s.register(ctx, room, req)
		if err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	token, err := s.tokens.Issue(room.ID, participant.ID, participant.Nickname)
	if err != nil {
		return nil, err
	}

	return &domain.JoinResponse{
		Token:    token,
		Nickname: participant.Nickname,
	}, nil
}

func (s *joinServiceImpl) authenticate(ctx context.Context, participant *domain.Participant, password string) error {
	ctx = log.WithParticipant(ctx, participant.ID)
	if !s.hasher.Verify(password, participant.PasswordHash) {
		audit.Log(ctx, audit.ActionLoginFailed, "password mismatch")
		return ErrBadCredentials
	}
	audit.Log(ctx, audit.ActionLogin, "participant logged in")
	return nil
}

func (s *joinServiceImpl) register(ctx context.Context, room *domain.Room, req *domain.JoinRequest) (*domain.Participant, error) {
	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	participant := &domain.Participant{
		RoomID:       room.ID,
		Nickname:     req.Nickname,
		PasswordHash: hash,
	}
	err = s.participants.Create(ctx, participant)
	if errors.Is(err, repository.ErrNicknameTaken) {
		// A concurrent first join won the insert; authenticate against it.
		l := log.Ctx(ctx)
		l.Debug().Str(log.FieldNickname, req.Nickname).Msg("nickname registered concurrently, authenticating instead")

		existing, err := s.participants.GetByNickname(ctx, room.ID, req.Nickname)
		if err != nil {
			return nil, err
		}
		if err := s.authenticate(ctx, existing, req.Password); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}

	audit.Log(log.WithParticipant(ctx, participant.ID), audit.ActionRegisterParticipant, "participant registered")
	return participant, nil
}
