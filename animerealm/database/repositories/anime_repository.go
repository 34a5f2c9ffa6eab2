package repositories

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DeleteSeriesResult tallies the cascade performed by DeleteSeries.
type DeleteSeriesResult struct {
	Seasons  int64
	Episodes int64
}

// CatalogStats is the aggregate snapshot shown on the admin stats screen.
type CatalogStats struct {
	Series         int64
	Seasons        int64
	Episodes       int64
	TotalDownloads int64
	TotalFileBytes int64
}

type AnimeRepository interface {
	CreateAnime(ctx context.Context, anime *models.Anime) (primitive.ObjectID, error)
	GetAnime(ctx context.Context, id primitive.ObjectID) (*models.Anime, error)
	AllAnimes(ctx context.Context) ([]models.Anime, error)
	Find(ctx context.Context, filter bson.M, limit int64) ([]models.Anime, error)
	UpdateAnime(ctx context.Context, id primitive.ObjectID, set bson.M) error
	DeleteSeries(ctx context.Context, id primitive.ObjectID) (DeleteSeriesResult, error)
	PopularAnimes(ctx context.Context, limit int64) ([]models.Anime, error)
	LatestAnimes(ctx context.Context, limit int64) ([]models.Anime, error)
	WatchersOf(ctx context.Context, animeID primitive.ObjectID) ([]int64, error)

	CreateSeason(ctx context.Context, season *models.Season) (primitive.ObjectID, error)
	GetSeason(ctx context.Context, id primitive.ObjectID) (*models.Season, error)
	SeasonByNumber(ctx context.Context, animeID primitive.ObjectID, number int) (*models.Season, error)
	SeasonsOf(ctx context.Context, animeID primitive.ObjectID) ([]models.Season, error)
	DeleteSeason(ctx context.Context, id primitive.ObjectID) (int64, error)

	CreateEpisode(ctx context.Context, episode *models.Episode) (primitive.ObjectID, error)
	GetEpisode(ctx context.Context, id primitive.ObjectID) (*models.Episode, error)
	EpisodesOf(ctx context.Context, seasonID primitive.ObjectID) ([]models.Episode, error)
	EpisodeVariants(ctx context.Context, seasonID primitive.ObjectID, episodeNumber int) ([]models.Episode, error)
	DeleteEpisode(ctx context.Context, id primitive.ObjectID) error

	IncrementDownloadCount(ctx context.Context, animeID, episodeID primitive.ObjectID) error
	ReapOrphans(ctx context.Context) (seasons, episodes int64, err error)
	Stats(ctx context.Context) (*CatalogStats, error)
}

type animeRepository struct {
	animes   *mongo.Collection
	seasons  *mongo.Collection
	episodes *mongo.Collection
	users    *mongo.Collection
}

func NewAnimeRepository(db *database.DB) AnimeRepository {
	return &animeRepository{
		animes:   db.Collection(database.CollAnimes),
		seasons:  db.Collection(database.CollSeasons),
		episodes: db.Collection(database.CollEpisodes),
		users:    db.Collection(database.CollUsers),
	}
}

func (r *animeRepository) CreateAnime(ctx context.Context, anime *models.Anime) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	if anime.AddedAt.IsZero() {
		anime.AddedAt = now
	}
	anime.LastUpdatedAt = now

	res, err := r.animes.InsertOne(ctx, anime)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *animeRepository) GetAnime(ctx context.Context, id primitive.ObjectID) (*models.Anime, error) {
	var anime models.Anime
	err := r.animes.FindOne(ctx, bson.M{"_id": id}).Decode(&anime)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &anime, nil
}

func (r *animeRepository) AllAnimes(ctx context.Context) ([]models.Anime, error) {
	cur, err := r.animes.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "title", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Anime](ctx, cur)
}

// Find lists series matching an arbitrary filter document, title-ordered.
// Callers build the filter (genre, status, year, title prefix).
func (r *animeRepository) Find(ctx context.Context, filter bson.M, limit int64) ([]models.Anime, error) {
	opts := options.Find().SetSort(bson.D{{Key: "title", Value: 1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	cur, err := r.animes.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Anime](ctx, cur)
}

func (r *animeRepository) UpdateAnime(ctx context.Context, id primitive.ObjectID, set bson.M) error {
	set["last_updated_at"] = time.Now().UTC()
	res, err := r.animes.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSeries removes the series and cascades to its seasons and episodes.
// The cascade is not transactional; ReapOrphans covers a crash mid-way.
func (r *animeRepository) DeleteSeries(ctx context.Context, id primitive.ObjectID) (DeleteSeriesResult, error) {
	var result DeleteSeriesResult

	res, err := r.animes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return result, err
	}
	if res.DeletedCount == 0 {
		return result, ErrNotFound
	}

	epRes, err := r.episodes.DeleteMany(ctx, bson.M{"anime_id": id})
	if err != nil {
		return result, err
	}
	result.Episodes = epRes.DeletedCount

	seasonRes, err := r.seasons.DeleteMany(ctx, bson.M{"anime_id": id})
	if err != nil {
		return result, err
	}
	result.Seasons = seasonRes.DeletedCount

	slog.Info("Deleted series with cascade",
		slog.String("type", "db"),
		slog.String("anime_id", id.Hex()),
		slog.Int64("seasons", result.Seasons),
		slog.Int64("episodes", result.Episodes))
	return result, nil
}

func (r *animeRepository) PopularAnimes(ctx context.Context, limit int64) ([]models.Anime, error) {
	cur, err := r.animes.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "download_count", Value: -1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Anime](ctx, cur)
}

func (r *animeRepository) LatestAnimes(ctx context.Context, limit int64) ([]models.Anime, error) {
	cur, err := r.animes.Find(ctx, bson.D{}, options.Find().
		SetSort(bson.D{{Key: "added_at", Value: -1}}).
		SetLimit(limit))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Anime](ctx, cur)
}

// WatchersOf returns user ids that have animeID on their watchlist and have
// watchlist notifications enabled.
func (r *animeRepository) WatchersOf(ctx context.Context, animeID primitive.ObjectID) ([]int64, error) {
	cur, err := r.users.Find(ctx,
		bson.M{"watchlist": animeID, "settings.watchlist_notifications": true},
		options.Find().SetProjection(bson.M{"user_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			UserID int64 `bson:"user_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.UserID)
	}
	return ids, cur.Err()
}

func (r *animeRepository) CreateSeason(ctx context.Context, season *models.Season) (primitive.ObjectID, error) {
	if season.AddedAt.IsZero() {
		season.AddedAt = time.Now().UTC()
	}
	res, err := r.seasons.InsertOne(ctx, season)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *animeRepository) GetSeason(ctx context.Context, id primitive.ObjectID) (*models.Season, error) {
	var season models.Season
	err := r.seasons.FindOne(ctx, bson.M{"_id": id}).Decode(&season)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &season, nil
}

func (r *animeRepository) SeasonByNumber(ctx context.Context, animeID primitive.ObjectID, number int) (*models.Season, error) {
	var season models.Season
	err := r.seasons.FindOne(ctx, bson.M{"anime_id": animeID, "season_number": number}).Decode(&season)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &season, nil
}

func (r *animeRepository) SeasonsOf(ctx context.Context, animeID primitive.ObjectID) ([]models.Season, error) {
	cur, err := r.seasons.Find(ctx, bson.M{"anime_id": animeID},
		options.Find().SetSort(bson.D{{Key: "season_number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Season](ctx, cur)
}

// DeleteSeason removes the season and its episodes, returning the episode count.
func (r *animeRepository) DeleteSeason(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := r.seasons.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount == 0 {
		return 0, ErrNotFound
	}

	epRes, err := r.episodes.DeleteMany(ctx, bson.M{"season_id": id})
	if err != nil {
		return 0, err
	}
	return epRes.DeletedCount, nil
}

func (r *animeRepository) CreateEpisode(ctx context.Context, episode *models.Episode) (primitive.ObjectID, error) {
	if episode.AddedAt.IsZero() {
		episode.AddedAt = time.Now().UTC()
	}
	res, err := r.episodes.InsertOne(ctx, episode)
	if err != nil {
		return primitive.NilObjectID, err
	}
	return res.InsertedID.(primitive.ObjectID), nil
}

func (r *animeRepository) GetEpisode(ctx context.Context, id primitive.ObjectID) (*models.Episode, error) {
	var episode models.Episode
	err := r.episodes.FindOne(ctx, bson.M{"_id": id}).Decode(&episode)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &episode, nil
}

func (r *animeRepository) EpisodesOf(ctx context.Context, seasonID primitive.ObjectID) ([]models.Episode, error) {
	cur, err := r.episodes.Find(ctx, bson.M{"season_id": seasonID},
		options.Find().SetSort(bson.D{{Key: "episode_number", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Episode](ctx, cur)
}

func (r *animeRepository) EpisodeVariants(ctx context.Context, seasonID primitive.ObjectID, episodeNumber int) ([]models.Episode, error) {
	cur, err := r.episodes.Find(ctx,
		bson.M{"season_id": seasonID, "episode_number": episodeNumber},
		options.Find().SetSort(bson.D{{Key: "quality", Value: 1}, {Key: "audio_type", Value: 1}}))
	if err != nil {
		return nil, err
	}
	return decodeAll[models.Episode](ctx, cur)
}

func (r *animeRepository) DeleteEpisode(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.episodes.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementDownloadCount bumps both popularity counters after a confirmed
// delivery. Failures here never undo the delivery itself.
func (r *animeRepository) IncrementDownloadCount(ctx context.Context, animeID, episodeID primitive.ObjectID) error {
	if _, err := r.animes.UpdateOne(ctx,
		bson.M{"_id": animeID},
		bson.M{"$inc": bson.M{"download_count": int64(1)}},
	); err != nil {
		return err
	}
	_, err := r.episodes.UpdateOne(ctx,
		bson.M{"_id": episodeID},
		bson.M{"$inc": bson.M{"download_count": int64(1)}},
	)
	return err
}

// ReapOrphans deletes seasons whose series is gone and episodes whose season
// is gone. It reconciles the non-transactional cascade in DeleteSeries.
func (r *animeRepository) ReapOrphans(ctx context.Context) (int64, int64, error) {
	animeIDs, err := r.distinctIDs(ctx, r.animes)
	if err != nil {
		return 0, 0, err
	}
	seasonRes, err := r.seasons.DeleteMany(ctx, bson.M{"anime_id": bson.M{"$nin": animeIDs}})
	if err != nil {
		return 0, 0, err
	}

	seasonIDs, err := r.distinctIDs(ctx, r.seasons)
	if err != nil {
		return seasonRes.DeletedCount, 0, err
	}
	epRes, err := r.episodes.DeleteMany(ctx, bson.M{"season_id": bson.M{"$nin": seasonIDs}})
	if err != nil {
		return seasonRes.DeletedCount, 0, err
	}
	return seasonRes.DeletedCount, epRes.DeletedCount, nil
}

func (r *animeRepository) distinctIDs(ctx context.Context, coll *mongo.Collection) ([]primitive.ObjectID, error) {
	raw, err := coll.Distinct(ctx, "_id", bson.D{})
	if err != nil {
		return nil, err
	}
	ids := make([]primitive.ObjectID, 0, len(raw))
	for _, v := range raw {
		if id, ok := v.(primitive.ObjectID); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *animeRepository) Stats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{}

	var err error
	if stats.Series, err = r.animes.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, err
	}
	if stats.Seasons, err = r.seasons.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, err
	}
	if stats.Episodes, err = r.episodes.CountDocuments(ctx, bson.D{}); err != nil {
		return nil, err
	}

	cur, err := r.episodes.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":       nil,
			"downloads": bson.M{"$sum": "$download_count"},
			"bytes":     bson.M{"$sum": "$file_size_bytes"},
		}}},
	})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	if cur.Next(ctx) {
		var doc struct {
			Downloads int64 `bson:"downloads"`
			Bytes     int64 `bson:"bytes"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		stats.TotalDownloads = doc.Downloads
		stats.TotalFileBytes = doc.Bytes
	}
	return stats, cur.Err()
}

func decodeAll[T any](ctx context.Context, cur *mongo.Cursor) ([]T, error) {
	defer cur.Close(ctx)
	var out []T
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
