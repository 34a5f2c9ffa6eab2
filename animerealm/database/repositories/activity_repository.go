package repositories

import (
	"context"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ActivityRepository interface {
	Record(ctx context.Context, entry *models.Activity) error
	RecentByUser(ctx context.Context, userID int64, limit int64) ([]models.Activity, error)
	CountSince(ctx context.Context, action string, since time.Time) (int64, error)
}

type activityRepository struct {
	activity *mongo.Collection
}

func NewActivityRepository(db *database.DB) ActivityRepository {
	return &activityRepository{activity: db.Collection(database.CollUserActivity)}
}

func (r *activityRepository) Record(ctx context.Context, entry *models.Activity) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	_, err := r.activity.InsertOne(ctx, entry)
	return err
}

func (r *activityRepository) RecentByUser(ctx context.Context, userID int64, limit int64) ([]models.Activity, error) {
	cur, err := r.activity.Find(ctx, bson.M{"user_id": userID}, options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Activity](ctx, cur)
}

func (r *activityRepository) CountSince(ctx context.Context, action string, since time.Time) (int64, error) {
	return r.activity.CountDocuments(ctx, bson.M{
		"action":    action,
		"timestamp": bson.M{"$gte": since},
	})
}
