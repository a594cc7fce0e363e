package feed

import (
	"context"
	"time"

	"parley/internal/entity"
)

// Stream is one open change feed for a single room. Next blocks until the
// next batch arrives or ctx is done. The first batch of every stream is the
// catch-up snapshot.
type Stream interface {
	Next(ctx context.Context) (entity.ChangeBatch, error)
	Close(ctx context.Context) error
}

// Source resolves visibility cutoffs and opens room feed streams. Cutoff is
// always resolved before Open so the stream filter can be captured
// atomically; an error from Cutoff fails closed and no stream is opened.
type Source interface {
	Cutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error)
	Open(ctx context.Context, userId, roomId string, cutoff time.Time, bounded bool) (Stream, error)
}

// Committer persists a submitted message, assigning its authoritative id and
// timestamp. The returned message carries the echo's provisional id.
type Committer interface {
	Commit(ctx context.Context, message entity.Message) (entity.Message, error)
}

// Visibility is the write side of the per-user visibility rules.
type Visibility interface {
	SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error
	HideMessage(ctx context.Context, messageId, userId string) error
}
