package repositories

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/animerealm/animerealm/animerealm/database"
	"github.com/animerealm/animerealm/animerealm/database/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned for expected-absent cases: operations against a user
// id that has no record.
var ErrNotFound = errors.New("record not found")

// ErrNotPremium is returned by RevokePremium when the user is not currently
// premium; a conflict outcome, distinct from ErrNotFound.
var ErrNotPremium = errors.New("user is not premium")

type UserRepository interface {
	EnsureUser(ctx context.Context, userID int64, username, firstName string) (*models.User, error)
	Get(ctx context.Context, userID int64) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	AllIDs(ctx context.Context) ([]int64, error)
	Count(ctx context.Context) (int64, error)
	CountPremium(ctx context.Context) (int64, error)

	AdjustTokens(ctx context.Context, userID int64, delta int64) (int64, error)
	DebitToken(ctx context.Context, userID int64) (bool, error)
	CanEarnToday(ctx context.Context, userID int64, dailyCap int64) (bool, error)
	RecordEarn(ctx context.Context, userID int64) error
	CanDownloadToday(ctx context.Context, userID int64, dailyCap int64) (bool, error)
	RecordDownload(ctx context.Context, userID int64, animeID, episodeID primitive.ObjectID) error

	GrantPremium(ctx context.Context, userID int64, days int, grantedBy int64) (time.Time, error)
	RevokePremium(ctx context.Context, userID int64, revokedBy int64) error
	SweepExpiredPremiums(ctx context.Context) (int, error)

	AddToWatchlist(ctx context.Context, userID int64, animeID primitive.ObjectID) (bool, error)
	RemoveFromWatchlist(ctx context.Context, userID int64, animeID primitive.ObjectID) (bool, error)
	UpdateSetting(ctx context.Context, userID int64, key string, value any) error
}

type userRepository struct {
	users    *mongo.Collection
	activity *mongo.Collection
}

func NewUserRepository(db *database.DB) UserRepository {
	return &userRepository{
		users:    db.Collection(database.CollUsers),
		activity: db.Collection(database.CollUserActivity),
	}
}

// EnsureUser is the idempotent create-or-touch keyed by user id. Counters are
// seeded only on insert; an existing record only has its display-name fields
// refreshed.
func (r *userRepository) EnsureUser(ctx context.Context, userID int64, username, firstName string) (*models.User, error) {
	if username == "" {
		username = firstName
	}

	update := bson.M{
		"$setOnInsert": bson.M{
			"user_id":              userID,
			"download_tokens":      int64(0),
			"is_premium":           false,
			"premium_expiry_date":  nil,
			"join_date":            time.Now().UTC(),
			"watchlist":            []primitive.ObjectID{},
			"settings":             models.DefaultSettings(),
			"last_token_earn_date": nil,
			"tokens_earned_today":  int64(0),
			"last_download_date":   nil,
			"downloads_today":      int64(0),
		},
		"$set": bson.M{
			"username":   username,
			"first_name": firstName,
		},
	}

	var user models.User
	err := r.users.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&user)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure user %d: %w", userID, err)
	}
	return &user, nil
}

func (r *userRepository) Get(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := r.users.FindOne(ctx, bson.M{"user_id": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	clean := strings.TrimPrefix(username, "@")
	pattern := primitive.Regex{Pattern: "^" + regexp.QuoteMeta(clean) + "$", Options: "i"}

	var user models.User
	err := r.users.FindOne(ctx, bson.M{"username": pattern}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) AllIDs(ctx context.Context) ([]int64, error) {
	cur, err := r.users.Find(ctx, bson.D{},
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

func (r *userRepository) Count(ctx context.Context) (int64, error) {
	return r.users.CountDocuments(ctx, bson.D{})
}

func (r *userRepository) CountPremium(ctx context.Context) (int64, error) {
	return r.users.CountDocuments(ctx, bson.M{
		"is_premium":          true,
		"premium_expiry_date": bson.M{"$gte": time.Now().UTC()},
	})
}

// AdjustTokens applies delta with an atomic increment. A result below zero is
// corrected to zero with a follow-up write and reported as zero; the balance
// invariant is that it never stays negative.
func (r *userRepository) AdjustTokens(ctx context.Context, userID int64, delta int64) (int64, error) {
	var user models.User
	err := r.users.FindOneAndUpdate(ctx,
		bson.M{"user_id": userID},
		bson.M{"$inc": bson.M{"download_tokens": delta}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}

	balance, correct := clampedBalance(user.DownloadTokens)
	if correct {
		// The $lt guard keeps the corrective write from clobbering a concurrent
		// credit that already brought the balance back up.
		if _, err := r.users.UpdateOne(ctx,
			bson.M{"user_id": userID, "download_tokens": bson.M{"$lt": 0}},
			bson.M{"$set": bson.M{"download_tokens": int64(0)}},
		); err != nil {
			return 0, err
		}
	}
	return balance, nil
}

// clampedBalance maps a raw post-increment balance to the reported one: a
// negative result reads as zero and signals that a corrective write is due.
func clampedBalance(raw int64) (int64, bool) {
	if raw < 0 {
		return 0, true
	}
	return raw, false
}

// DebitToken spends exactly one token, conditional on the balance holding at
// least one. Concurrent debits against a balance of N succeed at most N times.
func (r *userRepository) DebitToken(ctx context.Context, userID int64) (bool, error) {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID, "download_tokens": bson.M{"$gte": int64(1)}},
		bson.M{"$inc": bson.M{"download_tokens": int64(-1)}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount == 1, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}

// needsDailyReset reports whether the stored last-action date belongs to an
// earlier UTC day than now, meaning the counter must be zeroed before use.
// A date from today leaves the counter alone, so re-checking within the same
// day never re-grants quota.
func needsDailyReset(last *time.Time, now time.Time) bool {
	return last == nil || !sameDay(*last, now)
}

// CanEarnToday applies the lazy daily reset: if the stored last-earn date is
// not today, the earned counter is zeroed and stamped as a side effect of this
// read. Each counter's reset is independent of the download counter's.
func (r *userRepository) CanEarnToday(ctx context.Context, userID int64, dailyCap int64) (bool, error) {
	user, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	if !needsDailyReset(user.LastTokenEarnDate, now) {
		return user.TokensEarnedToday < dailyCap, nil
	}

	_, err = r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"tokens_earned_today": int64(0), "last_token_earn_date": now}},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRepository) RecordEarn(ctx context.Context, userID int64) error {
	_, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"tokens_earned_today": int64(1)},
			"$set": bson.M{"last_token_earn_date": time.Now().UTC()},
		},
	)
	return err
}

// CanDownloadToday always allows premium users without touching counters.
// Non-premium users follow the same lazy-reset pattern as earning.
func (r *userRepository) CanDownloadToday(ctx context.Context, userID int64, dailyCap int64) (bool, error) {
	user, err := r.Get(ctx, userID)
	if err != nil {
		return false, err
	}
	if user.PremiumActive(time.Now().UTC()) {
		return true, nil
	}

	now := time.Now().UTC()
	if !needsDailyReset(user.LastDownloadDate, now) {
		return user.DownloadsToday < dailyCap, nil
	}

	_, err = r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"downloads_today": int64(0), "last_download_date": now}},
	)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *userRepository) RecordDownload(ctx context.Context, userID int64, animeID, episodeID primitive.ObjectID) error {
	now := time.Now().UTC()
	_, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{
			"$inc": bson.M{"downloads_today": int64(1)},
			"$set": bson.M{"last_download_date": now},
		},
	)
	if err != nil {
		return err
	}

	_, err = r.activity.InsertOne(ctx, models.Activity{
		UserID:    userID,
		Action:    models.ActivityDownload,
		AnimeID:   animeID,
		EpisodeID: episodeID,
		Timestamp: now,
	})
	return err
}

func (r *userRepository) GrantPremium(ctx context.Context, userID int64, days int, grantedBy int64) (time.Time, error) {
	expiry := time.Now().UTC().Add(time.Duration(days) * 24 * time.Hour)
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"is_premium": true, "premium_expiry_date": expiry}},
	)
	if err != nil {
		return time.Time{}, err
	}
	if res.MatchedCount == 0 {
		return time.Time{}, ErrNotFound
	}

	if _, err := r.activity.InsertOne(ctx, models.Activity{
		UserID:       userID,
		Action:       models.ActivityPremiumGranted,
		ActorID:      grantedBy,
		DurationDays: days,
		Timestamp:    time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to log premium grant",
			slog.String("type", "db"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
	return expiry, nil
}

// RevokePremium is conditional on the user currently being premium, so a
// concurrent or repeated revoke is a harmless no-op reported as ErrNotPremium.
func (r *userRepository) RevokePremium(ctx context.Context, userID int64, revokedBy int64) error {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID, "is_premium": true},
		bson.M{"$set": bson.M{"is_premium": false, "premium_expiry_date": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotPremium
	}

	if _, err := r.activity.InsertOne(ctx, models.Activity{
		UserID:    userID,
		Action:    models.ActivityPremiumRevoked,
		ActorID:   revokedBy,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to log premium revoke",
			slog.String("type", "db"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
	return nil
}

// SweepExpiredPremiums revokes every lapsed subscription with the system actor
// id. Each revoke is conditional, so running two sweeps concurrently cannot
// revoke the same user twice.
func (r *userRepository) SweepExpiredPremiums(ctx context.Context) (int, error) {
	cur, err := r.users.Find(ctx, bson.M{
		"is_premium":          true,
		"premium_expiry_date": bson.M{"$lt": time.Now().UTC()},
	})
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	revoked := 0
	for cur.Next(ctx) {
		var user models.User
		if err := cur.Decode(&user); err != nil {
			return revoked, err
		}
		switch err := r.RevokePremium(ctx, user.UserID, models.SystemActorID); {
		case err == nil:
			revoked++
		case errors.Is(err, ErrNotPremium):
			// lost the race to another sweep, nothing to do
		default:
			slog.Error("Failed to revoke expired premium",
				slog.String("type", "db"),
				slog.Int64("user_id", user.UserID),
				slog.Any("error", err))
		}
	}
	return revoked, cur.Err()
}

func (r *userRepository) AddToWatchlist(ctx context.Context, userID int64, animeID primitive.ObjectID) (bool, error) {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$addToSet": bson.M{"watchlist": animeID}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *userRepository) RemoveFromWatchlist(ctx context.Context, userID int64, animeID primitive.ObjectID) (bool, error) {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$pull": bson.M{"watchlist": animeID}},
	)
	if err != nil {
		return false, err
	}
	return res.ModifiedCount > 0, nil
}

func (r *userRepository) UpdateSetting(ctx context.Context, userID int64, key string, value any) error {
	res, err := r.users.UpdateOne(ctx,
		bson.M{"user_id": userID},
		bson.M{"$set": bson.M{"settings." + key: value}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
