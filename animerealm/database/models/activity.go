package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Activity actions recorded in the append-only log.
const (
	ActivityDownload       = "download"
	ActivityPremiumGranted = "premium_granted"
	ActivityPremiumRevoked = "premium_revoked"
	ActivityTokenRedeemed  = "token_redeemed"
)

// SystemActorID marks entries written by background jobs rather than an admin.
const SystemActorID int64 = 0

// Activity is one immutable log entry. Entries are never mutated or deleted;
// the denormalized counters (downloads today, series popularity) are caches
// rebuildable by replaying this log.
type Activity struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	UserID       int64              `bson:"user_id"`
	Action       string             `bson:"action"`
	AnimeID      primitive.ObjectID `bson:"anime_id,omitempty"`
	EpisodeID    primitive.ObjectID `bson:"episode_id,omitempty"`
	ActorID      int64              `bson:"actor_id,omitempty"`
	DurationDays int                `bson:"duration_days,omitempty"`
	Amount       int64              `bson:"amount,omitempty"`
	Timestamp    time.Time          `bson:"timestamp"`
}
