package repository

import (
	"context"
	"time"

	"parley/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type VisibilityRepository interface {
	GetCutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error)
	SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error
	HideMessage(ctx context.Context, messageId, userId string) error
}

type visibilityRepository struct {
	db mongo.Database
}

func NewVisibilityRepository(db mongo.Database) VisibilityRepository {
	return &visibilityRepository{
		db: db,
	}
}

// GetCutoff returns the user's cleared-before instant for a room, if any.
func (r *visibilityRepository) GetCutoff(ctx context.Context, userId, roomId string) (time.Time, bool, error) {
	collection := r.db.Collection("room_visibility")
	filter := bson.M{"_id": userId}

	var visibility entity.RoomVisibility
	err := collection.FindOne(ctx, filter).Decode(&visibility)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}

	cutoff, ok := visibility.Cutoff(roomId)
	return cutoff, ok, nil
}

// SetCutoff merge-upserts the cutoff for one room without disturbing the
// user's cutoffs for other rooms. $max keeps the cutoff forward-only, so a
// stale write can never reopen already-cleared history.
func (r *visibilityRepository) SetCutoff(ctx context.Context, userId, roomId string, clearedAt time.Time) error {
	collection := r.db.Collection("room_visibility")
	filter := bson.M{"_id": userId}

	update := bson.M{
		"$max": bson.M{
			"clearedAt." + roomId: clearedAt,
		},
	}
	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// HideMessage adds userId to the message's hiddenFor set. $addToSet makes
// repeated hides idempotent; there is no un-hide.
func (r *visibilityRepository) HideMessage(ctx context.Context, messageId, userId string) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	update := bson.M{
		"$addToSet": bson.M{
			"hiddenFor": userId,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}
