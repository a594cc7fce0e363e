package repository

import (
	"context"
	"errors"
	"time"

	"parley/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var ErrRefreshTokenNotFound = errors.New("refresh token not found")

type RefreshTokenRepository interface {
	Create(ctx context.Context, refreshToken entity.RefreshToken) error
	GetByToken(ctx context.Context, token string) (entity.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	DeleteExpired(ctx context.Context) error
}

type refreshTokenRepository struct {
	db mongo.Database
}

func NewRefreshTokenRepository(db mongo.Database) RefreshTokenRepository {
	return &refreshTokenRepository{
		db: db,
	}
}

func (r *refreshTokenRepository) Create(ctx context.Context, refreshToken entity.RefreshToken) error {
	collection := r.db.Collection("refresh_tokens")

	refreshToken.Id = uuid.New().String()
	refreshToken.CreatedAt = time.Now()
	refreshToken.IsRevoked = false

	_, err := collection.InsertOne(ctx, refreshToken)
	return err
}

func (r *refreshTokenRepository) GetByToken(ctx context.Context, token string) (entity.RefreshToken, error) {
	collection := r.db.Collection("refresh_tokens")
	filter := bson.M{"token": token}

	var refreshToken entity.RefreshToken
	err := collection.FindOne(ctx, filter).Decode(&refreshToken)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.RefreshToken{}, ErrRefreshTokenNotFound
		}
		return entity.RefreshToken{}, err
	}

	return refreshToken, nil
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, token string) error {
	collection := r.db.Collection("refresh_tokens")
	filter := bson.M{"token": token}
	now := time.Now()

	update := bson.M{
		"$set": bson.M{
			"isRevoked": true,
			"revokedAt": now,
		},
	}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}

func (r *refreshTokenRepository) DeleteExpired(ctx context.Context) error {
	collection := r.db.Collection("refresh_tokens")
	filter := bson.M{
		"expiresAt": bson.M{"$lt": time.Now()},
	}

	_, err := collection.DeleteMany(ctx, filter)
	return err
}
