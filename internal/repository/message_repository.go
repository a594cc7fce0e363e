package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"parley/internal/entity"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrMessageNotFound = errors.New("message not found")

type MessageRepository interface {
	History(ctx context.Context, filter entity.MessageHistoryFilter) ([]entity.Message, error)
	Get(ctx context.Context, messageId string) (entity.Message, error)
	Create(ctx context.Context, message entity.Message) (entity.Message, error)
	Watch(ctx context.Context, roomId string, after time.Time, bounded bool) (*mongo.ChangeStream, error)
}

type messageRepository struct {
	db mongo.Database
}

func NewMessageRepository(db mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// History returns committed messages of a room in ascending createdAt order.
// A non-zero After bound is strict: messages at the instant itself are
// excluded, matching the history-clear semantics.
func (r *messageRepository) History(ctx context.Context, filter entity.MessageHistoryFilter) ([]entity.Message, error) {
	collection := r.db.Collection("messages")

	bsonFilter := bson.M{"roomId": filter.RoomId}
	if !filter.After.IsZero() {
		bsonFilter["createdAt"] = bson.M{"$gt": filter.After}
	}

	opts := options.Find()
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	opts.SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := collection.Find(ctx, bsonFilter, opts)
	if err != nil {
		return nil, err
	}

	var messages []entity.Message
	err = cursor.All(ctx, &messages)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	var message entity.Message
	err := collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

// Create assigns the authoritative id and timestamp and persists the message.
// ULIDs are sortable, so the (createdAt, id) tie-break stays creation-ordered.
func (r *messageRepository) Create(ctx context.Context, message entity.Message) (entity.Message, error) {
	collection := r.db.Collection("messages")

	now := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return entity.Message{}, err
	}

	message.Id = id.String()
	message.CreatedAt = now
	message.Pending = false
	message.Failed = false

	_, err = collection.InsertOne(ctx, message)
	if err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

// Watch opens a change stream over one room's messages. When bounded, only
// messages created strictly after the given instant pass the filter. Updates
// are delivered with the full document so hiddenFor changes reach the feed.
func (r *messageRepository) Watch(ctx context.Context, roomId string, after time.Time, bounded bool) (*mongo.ChangeStream, error) {
	collection := r.db.Collection("messages")

	match := bson.M{
		"operationType":       bson.M{"$in": bson.A{"insert", "update", "replace"}},
		"fullDocument.roomId": roomId,
	}
	if bounded {
		match["fullDocument.createdAt"] = bson.M{"$gt": after}
	}

	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: match}},
	}

	opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)

	return collection.Watch(ctx, pipeline, opts)
}
