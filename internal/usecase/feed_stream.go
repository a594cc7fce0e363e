package usecase

import (
	"context"

	"parley/internal/entity"
	"parley/internal/feed"

	"go.mongodb.org/mongo-driver/mongo"
)

// mongoStream adapts a MongoDB change stream to feed.Stream. The first Next
// call returns the catch-up snapshot as one added batch; later calls block
// on the change stream and return single-change batches.
type mongoStream struct {
	cs      *mongo.ChangeStream
	catchUp []entity.Message
	sent    bool
}

type changeEvent struct {
	OperationType string         `bson:"operationType"`
	FullDocument  entity.Message `bson:"fullDocument"`
	DocumentKey   struct {
		Id string `bson:"_id"`
	} `bson:"documentKey"`
}

func (s *mongoStream) Next(ctx context.Context) (entity.ChangeBatch, error) {
	if !s.sent {
		s.sent = true
		batch := entity.ChangeBatch{
			CatchUp: true,
			Changes: make([]entity.Change, 0, len(s.catchUp)),
		}
		for _, m := range s.catchUp {
			batch.Changes = append(batch.Changes, entity.Change{Kind: entity.ChangeAdded, Message: m})
		}
		return batch, nil
	}

	for {
		if !s.cs.Next(ctx) {
			if err := s.cs.Err(); err != nil && ctx.Err() == nil {
				return entity.ChangeBatch{}, err
			}
			if ctx.Err() != nil {
				return entity.ChangeBatch{}, ctx.Err()
			}
			return entity.ChangeBatch{}, feed.ErrStreamClosed
		}

		var ev changeEvent
		if err := s.cs.Decode(&ev); err != nil {
			return entity.ChangeBatch{}, err
		}

		change := entity.Change{Message: ev.FullDocument}
		switch ev.OperationType {
		case "insert":
			change.Kind = entity.ChangeAdded
		case "update", "replace":
			if ev.FullDocument.Id == "" {
				// The fullDocument lookup raced a delete; nothing to apply.
				continue
			}
			change.Kind = entity.ChangeModified
		case "delete":
			// Not produced by normal operation; handled for robustness.
			change.Kind = entity.ChangeRemoved
			change.Message = entity.Message{Id: ev.DocumentKey.Id}
		default:
			change.Kind = entity.ChangeModified
		}

		return entity.ChangeBatch{Changes: []entity.Change{change}}, nil
	}
}

func (s *mongoStream) Close(ctx context.Context) error {
	return s.cs.Close(ctx)
}
