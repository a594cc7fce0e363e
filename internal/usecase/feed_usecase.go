package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"parley/infrastructure/cache"
	"parley/internal/entity"
	"parley/internal/feed"
	"parley/internal/repository"
)

var ErrEmptyMessage = errors.New("message text is empty")

const cutoffCacheTTL = 30 * time.Second

// FeedUsecase backs the feed engine with MongoDB: cutoff resolution, change
// streams, message commits, and visibility writes. It satisfies feed.Source,
// feed.Committer, and feed.Visibility.
type FeedUsecase interface {
	Cutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error)
	Open(ctx context.Context, userId, roomId string, cutoff time.Time, bounded bool) (feed.Stream, error)
	Commit(ctx context.Context, message entity.Message) (entity.Message, error)
	SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error
	HideMessage(ctx context.Context, messageId, userId string) error
}

type feedUsecase struct {
	messageRepo    repository.MessageRepository
	visibilityRepo repository.VisibilityRepository
	cutoffCache    *cache.MemCache
}

func NewFeedUsecase(
	messageRepo repository.MessageRepository,
	visibilityRepo repository.VisibilityRepository,
	cutoffCache *cache.MemCache,
) FeedUsecase {
	return &feedUsecase{
		messageRepo:    messageRepo,
		visibilityRepo: visibilityRepo,
		cutoffCache:    cutoffCache,
	}
}

type cachedCutoff struct {
	at      time.Time
	bounded bool
}

func cutoffKey(userId, roomId string) string {
	return "cutoff:" + userId + ":" + roomId
}

// Cutoff resolves the user's cleared-before instant for a room. Lookup
// errors are returned as-is so the caller fails closed; only successful
// lookups are cached.
func (u *feedUsecase) Cutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error) {
	key := cutoffKey(userId, roomId)
	if v, ok := u.cutoffCache.Get(key); ok {
		c := v.(cachedCutoff)
		return c.at, c.bounded, nil
	}

	at, bounded, err := u.visibilityRepo.GetCutoff(ctx, userId, roomId)
	if err != nil {
		return time.Time{}, false, err
	}

	u.cutoffCache.Set(key, cachedCutoff{at: at, bounded: bounded}, cutoffCacheTTL)
	return at, bounded, nil
}

// Open starts the room's change stream and fetches the catch-up snapshot.
// The stream opens first so inserts landing between the two are not lost;
// the reconciler dedups any overlap.
func (u *feedUsecase) Open(ctx context.Context, userId, roomId string, cutoff time.Time, bounded bool) (feed.Stream, error) {
	cs, err := u.messageRepo.Watch(ctx, roomId, cutoff, bounded)
	if err != nil {
		return nil, err
	}

	filter := entity.MessageHistoryFilter{RoomId: roomId}
	if bounded {
		filter.After = cutoff
	}
	catchUp, err := u.messageRepo.History(ctx, filter)
	if err != nil {
		_ = cs.Close(ctx)
		return nil, err
	}

	return &mongoStream{cs: cs, catchUp: catchUp}, nil
}

// Commit persists a submitted message. The repository assigns the
// authoritative id and timestamp; the provisional id rides along so every
// subscriber can reconcile the sender's echo.
func (u *feedUsecase) Commit(ctx context.Context, message entity.Message) (entity.Message, error) {
	if strings.TrimSpace(message.Text) == "" {
		return entity.Message{}, ErrEmptyMessage
	}
	return u.messageRepo.Create(ctx, message)
}

func (u *feedUsecase) SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error {
	if err := u.visibilityRepo.SetCutoff(ctx, userId, roomId, clearedAt); err != nil {
		return err
	}
	u.cutoffCache.Set(cutoffKey(userId, roomId), cachedCutoff{at: clearedAt, bounded: true}, cutoffCacheTTL)
	return nil
}

func (u *feedUsecase) HideMessage(ctx context.Context, messageId, userId string) error {
	return u.visibilityRepo.HideMessage(ctx, messageId, userId)
}
