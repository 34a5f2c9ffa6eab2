package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	defaultConnTimeout = 10 * time.Second

	CollUsers         = "users"
	CollAccessTokens  = "access_tokens"
	CollAnimes        = "animes"
	CollSeasons       = "seasons"
	CollEpisodes      = "episodes"
	CollAnimeRequests = "anime_requests"
	CollUserActivity  = "user_activity"
	CollBotSettings   = "bot_settings"
)

type DBConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

func New(ctx context.Context, cfg DBConfig) (*DB, error) {
	connCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	client, err := mongo.Connect(connCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(connCtx, nil); err != nil {
		return nil, fmt.Errorf("mongodb ping failed: %w", err)
	}
	return &DB{client: client, db: client.Database(cfg.Database)}, nil
}

func (d *DB) Collection(name string) *mongo.Collection {
	return d.db.Collection(name)
}

func (d *DB) Ping(ctx context.Context) error {
	return d.client.Ping(ctx, nil)
}

func (d *DB) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// EnsureIndexes creates the indexes the hot query paths rely on. Safe to run on
// every startup; existing indexes are left untouched.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		CollUsers: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_premium", Value: 1}, {Key: "premium_expiry_date", Value: 1}}},
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		CollAccessTokens: {
			{Keys: bson.D{{Key: "token_value", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		CollAnimes: {
			{Keys: bson.D{{Key: "title_searchable", Value: 1}}},
			{Keys: bson.D{{Key: "download_count", Value: -1}}},
		},
		CollSeasons: {
			{Keys: bson.D{{Key: "anime_id", Value: 1}, {Key: "season_number", Value: 1}}},
		},
		CollEpisodes: {
			{Keys: bson.D{{Key: "season_id", Value: 1}, {Key: "episode_number", Value: 1}}},
			{Keys: bson.D{{Key: "anime_id", Value: 1}, {Key: "season_number", Value: 1}, {Key: "episode_number", Value: 1}}},
		},
		CollAnimeRequests: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "requested_at", Value: 1}}},
		},
		CollUserActivity: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "timestamp", Value: -1}}},
			{Keys: bson.D{{Key: "action", Value: 1}}},
		},
		CollBotSettings: {
			{Keys: bson.D{{Key: "key", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
	}

	for coll, models := range indexes {
		if _, err := d.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("failed to create indexes for %s: %w", coll, err)
		}
	}
	slog.Info("Database indexes ensured", slog.String("type", "db"))
	return nil
}

// WipeResult is the per-collection tally reported by WipeAll.
type WipeResult struct {
	Collection string
	Deleted    int64
	Err        error
}

// WipeAll deletes every document from every owned collection, one collection
// at a time, continuing past per-collection errors. Only the double-confirmed
// destructive admin flow calls this.
func (d *DB) WipeAll(ctx context.Context) []WipeResult {
	collections := []string{
		CollUsers, CollAccessTokens, CollAnimes, CollSeasons,
		CollEpisodes, CollAnimeRequests, CollUserActivity, CollBotSettings,
	}

	results := make([]WipeResult, 0, len(collections))
	for _, name := range collections {
		slog.Warn("Deleting all documents from collection",
			slog.String("type", "db"),
			slog.String("collection", name))

		res, err := d.db.Collection(name).DeleteMany(ctx, bson.D{})
		if err != nil {
			slog.Error("Failed to wipe collection",
				slog.String("type", "db"),
				slog.String("collection", name),
				slog.Any("error", err))
			results = append(results, WipeResult{Collection: name, Err: err})
			continue
		}
		results = append(results, WipeResult{Collection: name, Deleted: res.DeletedCount})
	}
	return results
}
