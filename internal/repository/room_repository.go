package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrRoomNotFound = errors.New("room not found")

type RoomRepository interface {
	Index(ctx context.Context) ([]entity.Room, error)
	Get(ctx context.Context, roomId string) (entity.Room, error)
	GetByName(ctx context.Context, name string) (entity.Room, error)
	Create(ctx context.Context, room entity.Room) (string, error)
}

type roomRepository struct {
	db mongo.Database
}

func NewRoomRepository(db mongo.Database) RoomRepository {
	return &roomRepository{
		db: db,
	}
}

func (r *roomRepository) Index(ctx context.Context) ([]entity.Room, error) {
	collection := r.db.Collection("rooms")

	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}

	var rooms []entity.Room
	err = cursor.All(ctx, &rooms)
	if err != nil {
		return nil, err
	}

	return rooms, nil
}

func (r *roomRepository) Get(ctx context.Context, roomId string) (entity.Room, error) {
	collection := r.db.Collection("rooms")
	filter := bson.M{"_id": roomId}

	var room entity.Room
	err := collection.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Room{}, ErrRoomNotFound
		}
		return entity.Room{}, err
	}

	return room, nil
}

func (r *roomRepository) GetByName(ctx context.Context, name string) (entity.Room, error) {
	collection := r.db.Collection("rooms")
	filter := bson.M{"name": name}

	var room entity.Room
	err := collection.FindOne(ctx, filter).Decode(&room)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Room{}, ErrRoomNotFound
		}
		return entity.Room{}, err
	}

	return room, nil
}

func (r *roomRepository) Create(ctx context.Context, room entity.Room) (string, error) {
	collection := r.db.Collection("rooms")
	if room.Id == "" {
		room.Id = uuid.New().String()
	}
	room.CreatedAt = time.Now()
	room.UpdatedAt = time.Now()

	_, err := collection.InsertOne(ctx, room)
	if err != nil {
		return "", err
	}

	return room.Id, nil
}
