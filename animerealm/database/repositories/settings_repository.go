package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Persisted runtime setting keys.
const (
	SettingRequestLogChannel  = "request_log_channel_id"
	SettingActivityLogChannel = "activity_log_channel_id"
	SettingErrorLogChannel    = "error_log_channel_id"
)

type SettingsRepository interface {
	Get(ctx context.Context, key string) (int64, error)
	Set(ctx context.Context, key string, value int64) error
	All(ctx context.Context) (map[string]int64, error)
}

type settingsRepository struct {
	settings *mongo.Collection
}

func NewSettingsRepository(db *database.DB) SettingsRepository {
	return &settingsRepository{settings: db.Collection(database.CollBotSettings)}
}

func (r *settingsRepository) Get(ctx context.Context, key string) (int64, error) {
	var setting models.BotSetting
	err := r.settings.FindOne(ctx, bson.M{"key": key}).Decode(&setting)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return setting.Value, nil
}

func (r *settingsRepository) Set(ctx context.Context, key string, value int64) error {
	_, err := r.settings.UpdateOne(ctx,
		bson.M{"key": key},
		bson.M{"$set": bson.M{"value": value, "last_updated": time.Now().UTC()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (r *settingsRepository) All(ctx context.Context) (map[string]int64, error) {
	cur, err := r.settings.Find(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]int64)
	for cur.Next(ctx) {
		var setting models.BotSetting
		if err := cur.Decode(&setting); err != nil {
			return nil, err
		}
		out[setting.Key] = setting.Value
	}
	return out, cur.Err()
}
