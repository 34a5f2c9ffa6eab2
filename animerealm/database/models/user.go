package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// UserSettings is the small per-user preference bag. Defaults are applied on
// first contact and individual keys are patched in place afterwards.
type UserSettings struct {
	PreferredQuality       string `bson:"preferred_quality"`
	PreferredAudio         string `bson:"preferred_audio"`
	WatchlistNotifications bool   `bson:"watchlist_notifications"`
}

func DefaultSettings() UserSettings {
	return UserSettings{
		PreferredQuality:       "720p",
		PreferredAudio:         "SUB",
		WatchlistNotifications: true,
	}
}

// User is the per-user entitlement record, one document per Telegram user.
// Daily counters are always interpreted against the stored last-action date,
// never against wall-clock today directly.
type User struct {
	ID                primitive.ObjectID   `bson:"_id,omitempty"`
	UserID            int64                `bson:"user_id"`
	Username          string               `bson:"username"`
	FirstName         string               `bson:"first_name"`
	DownloadTokens    int64                `bson:"download_tokens"`
	IsPremium         bool                 `bson:"is_premium"`
	PremiumExpiryDate *time.Time           `bson:"premium_expiry_date"`
	JoinDate          time.Time            `bson:"join_date"`
	Watchlist         []primitive.ObjectID `bson:"watchlist"`
	Settings          UserSettings         `bson:"settings"`
	LastTokenEarnDate *time.Time           `bson:"last_token_earn_date"`
	TokensEarnedToday int64                `bson:"tokens_earned_today"`
	LastDownloadDate  *time.Time           `bson:"last_download_date"`
	DownloadsToday    int64                `bson:"downloads_today"`
}

// PremiumActive reports whether premium is in effect right now: the flag must
// be set and the expiry, when present, must still be in the future.
func (u *User) PremiumActive(now time.Time) bool {
	if !u.IsPremium {
		return false
	}
	if u.PremiumExpiryDate == nil {
		return true
	}
	return u.PremiumExpiryDate.After(now)
}

// Mention returns the admin-facing identifier for the user.
func (u *User) Mention() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return "user"
}
