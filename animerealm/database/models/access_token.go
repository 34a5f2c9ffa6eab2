package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Redemption token statuses. A token moves pending -> used or pending -> expired
// exactly once; the transition to used is a conditional update so concurrent
// redemptions of the same value cannot both win.
const (
	TokenStatusPending = "pending"
	TokenStatusUsed    = "used"
	TokenStatusExpired = "expired"
)

// AccessToken is a single-use, time-limited redemption token. Credited is the
// replay-safe marker: the balance credit is driven off this field so a crash
// between marking the token used and crediting the owner can be recovered
// without ever crediting twice.
type AccessToken struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	TokenValue    string             `bson:"token_value"`
	UserID        int64              `bson:"user_id"`
	TokensToGrant int64              `bson:"tokens_to_grant"`
	Status        string             `bson:"status"`
	Credited      bool               `bson:"credited"`
	CreatedAt     time.Time          `bson:"created_at"`
	ExpiresAt     time.Time          `bson:"expires_at"`
}

func (t *AccessToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
