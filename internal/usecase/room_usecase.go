package usecase

import (
	"context"
	"errors"
	"strings"

	"parley/internal/entity"
	"parley/internal/repository"
)

var ErrInvalidRoomName = errors.New("room name is required")

type RoomUsecase interface {
	Index(ctx context.Context) ([]entity.Room, error)
	Get(ctx context.Context, roomId string) (entity.Room, error)
	Create(ctx context.Context, name string) (string, error)
	EnsureDirect(ctx context.Context, userId, peerId string) (entity.Room, error)
	History(ctx context.Context, userId, roomId string, limit int) ([]entity.Message, error)
}

type roomUsecase struct {
	roomRepo       repository.RoomRepository
	messageRepo    repository.MessageRepository
	visibilityRepo repository.VisibilityRepository
	userRepo       repository.UserRepository
}

func NewRoomUsecase(
	roomRepo repository.RoomRepository,
	messageRepo repository.MessageRepository,
	visibilityRepo repository.VisibilityRepository,
	userRepo repository.UserRepository,
) RoomUsecase {
	return &roomUsecase{
		roomRepo:       roomRepo,
		messageRepo:    messageRepo,
		visibilityRepo: visibilityRepo,
		userRepo:       userRepo,
	}
}

func (u *roomUsecase) Index(ctx context.Context) ([]entity.Room, error) {
	return u.roomRepo.Index(ctx)
}

func (u *roomUsecase) Get(ctx context.Context, roomId string) (entity.Room, error) {
	return u.roomRepo.Get(ctx, roomId)
}

// Create makes a named group room; creating an existing name returns the
// existing room's id.
func (u *roomUsecase) Create(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrInvalidRoomName
	}

	existing, err := u.roomRepo.GetByName(ctx, name)
	if err == nil {
		return existing.Id, nil
	}
	if err != repository.ErrRoomNotFound {
		return "", err
	}

	return u.roomRepo.Create(ctx, entity.Room{Name: name})
}

// EnsureDirect returns the direct room between two users, creating it on
// first contact. Both sides derive the same canonical room id.
func (u *roomUsecase) EnsureDirect(ctx context.Context, userId, peerId string) (entity.Room, error) {
	peer, err := u.userRepo.Get(ctx, peerId)
	if err != nil {
		return entity.Room{}, err
	}

	roomId := entity.DirectRoomId(userId, peerId)
	room, err := u.roomRepo.Get(ctx, roomId)
	if err == nil {
		return room, nil
	}
	if err != repository.ErrRoomNotFound {
		return entity.Room{}, err
	}

	room = entity.Room{Id: roomId, Name: peer.Name}
	if _, err := u.roomRepo.Create(ctx, room); err != nil {
		return entity.Room{}, err
	}
	return room, nil
}

// History returns a room's messages as the given user may see them: the
// user's cutoff bounds the query and soft-deleted messages are dropped. The
// REST path applies the same visibility rules as the live feed.
func (u *roomUsecase) History(ctx context.Context, userId, roomId string, limit int) ([]entity.Message, error) {
	cutoff, bounded, err := u.visibilityRepo.GetCutoff(ctx, userId, roomId)
	if err != nil {
		return nil, err
	}

	filter := entity.MessageHistoryFilter{RoomId: roomId, Limit: limit}
	if bounded {
		filter.After = cutoff
	}
	messages, err := u.messageRepo.History(ctx, filter)
	if err != nil {
		return nil, err
	}

	visible := make([]entity.Message, 0, len(messages))
	for _, m := range messages {
		if m.HiddenForUser(userId) {
			continue
		}
		visible = append(visible, m)
	}
	return visible, nil
}
