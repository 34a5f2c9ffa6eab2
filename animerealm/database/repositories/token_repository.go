package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type TokenRepository interface {
	Create(ctx context.Context, token *models.AccessToken) error
	GetByValue(ctx context.Context, value string) (*models.AccessToken, error)
	// MarkUsed transitions value from pending to used. Returns false when the
	// token was not pending anymore, i.e. another redemption won.
	MarkUsed(ctx context.Context, value string) (bool, error)
	// MarkExpired transitions value from pending to expired.
	MarkExpired(ctx context.Context, value string) (bool, error)
	// ClaimCredit transitions a used, uncredited token to credited. The caller
	// that wins this claim is the one allowed to apply the balance credit.
	ClaimCredit(ctx context.Context, value string) (bool, error)
	CountByStatus(ctx context.Context, status string) (int64, error)
}

type tokenRepository struct {
	tokens *mongo.Collection
}

func NewTokenRepository(db *database.DB) TokenRepository {
	return &tokenRepository{tokens: db.Collection(database.CollAccessTokens)}
}

func (r *tokenRepository) Create(ctx context.Context, token *models.AccessToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_, err := r.tokens.InsertOne(ctx, token)
	return err
}

func (r *tokenRepository) GetByValue(ctx context.Context, value string) (*models.AccessToken, error) {
	var token models.AccessToken
	err := r.tokens.FindOne(ctx, bson.M{"token_value": value}).Decode(&token)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *tokenRepository) MarkUsed(ctx context.Context, value string) (bool, error) {
	return r.transition(ctx, value, models.TokenStatusPending, bson.M{
		"status": models.TokenStatusUsed,
	})
}

func (r *tokenRepository) MarkExpired(ctx context.Context, value string) (bool, error) {
	return r.transition(ctx, value, models.TokenStatusPending, bson.M{
		"status": models.TokenStatusExpired,
	})
}

func (r *tokenRepository) transition(ctx context.Context, value, from string, set bson.M) (bool, error) {
	res, err := r.tokens.UpdateOne(ctx,
		bson.M{"token_value": value, "status": from},
		bson.M{"$set": set},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *tokenRepository) ClaimCredit(ctx context.Context, value string) (bool, error) {
	res, err := r.tokens.UpdateOne(ctx,
		bson.M{"token_value": value, "status": models.TokenStatusUsed, "credited": false},
		bson.M{"$set": bson.M{"credited": true}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func (r *tokenRepository) CountByStatus(ctx context.Context, status string) (int64, error) {
	return r.tokens.CountDocuments(ctx, bson.M{"status": status})
}
