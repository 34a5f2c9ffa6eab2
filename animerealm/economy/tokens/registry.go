// Package tokens implements the earn/redeem half of the download economy:
// single-use redemption tokens minted behind a shortened deep link and
// credited to the balance exactly once.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// Shortener produces the user-facing form of the earn link.
type Shortener interface {
	Shorten(ctx context.Context, longURL string) string
}

// Config are the economy knobs for minting and redeeming.
type Config struct {
	BotUsername   string `toml:"bot_username"`
	TokensPerEarn int64  `toml:"tokens_per_earn"`
	DailyEarnCap  int64  `toml:"daily_earn_cap"`
	TokenTTLHours int    `toml:"token_ttl_hours"`
}

// Redemption outcomes, ordered by the validation ladder.
type RedeemStatus int

const (
	RedeemGranted RedeemStatus = iota
	RedeemInvalid
	RedeemNotYours
	RedeemAlreadyUsed
	RedeemExpired
	RedeemCapReached
)

// RedeemResult carries the outcome plus the new balance when granted.
type RedeemResult struct {
	Status     RedeemStatus
	Granted    int64
	NewBalance int64
}

// ErrEarnCapReached is returned by CreateEarnLink when the user already hit
// today's earn cap.
var ErrEarnCapReached = errors.New("daily earn cap reached")

type Registry struct {
	cfg       Config
	tokens    repositories.TokenRepository
	users     repositories.UserRepository
	activity  repositories.ActivityRepository
	shortener Shortener
}

func NewRegistry(cfg Config, tokens repositories.TokenRepository, users repositories.UserRepository, activity repositories.ActivityRepository, shortener Shortener) *Registry {
	return &Registry{
		cfg:       cfg,
		tokens:    tokens,
		users:     users,
		activity:  activity,
		shortener: shortener,
	}
}

// CreateEarnLink mints a fresh pending token bound to userID and returns the
// deep link that redeems it. The earn counter is stamped at mint time, so
// abandoning the link still consumes today's attempt.
func (r *Registry) CreateEarnLink(ctx context.Context, userID int64) (string, error) {
	ok, err := r.users.CanEarnToday(ctx, userID, r.cfg.DailyEarnCap)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrEarnCapReached
	}

	now := time.Now().UTC()
	token := &models.AccessToken{
		TokenValue:    uuid.NewString(),
		UserID:        userID,
		TokensToGrant: r.cfg.TokensPerEarn,
		Status:        models.TokenStatusPending,
		CreatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(r.cfg.TokenTTLHours) * time.Hour),
	}
	if err := r.tokens.Create(ctx, token); err != nil {
		return "", fmt.Errorf("failed to mint token: %w", err)
	}
	if err := r.users.RecordEarn(ctx, userID); err != nil {
		return "", err
	}

	longURL := fmt.Sprintf("https://t.me/%s?start=%s", r.cfg.BotUsername, token.TokenValue)
	return r.shortener.Shorten(ctx, longURL), nil
}

// Redeem walks the validation ladder for value on behalf of userID:
// unknown value, already settled (used or expired), wrong owner, expired on
// first touch (marked as such), then the conditional pending->used transition
// that settles races. Ownership is only checked for live tokens, so a settled
// token reports its settled state to whoever holds the link. The balance
// credit is keyed to the token's credited marker, so a redemption interrupted
// between marking used and crediting is finished on the owner's next attempt
// instead of paying twice.
func (r *Registry) Redeem(ctx context.Context, userID int64, value string) (*RedeemResult, error) {
	token, err := r.tokens.GetByValue(ctx, value)
	if errors.Is(err, repositories.ErrNotFound) {
		return &RedeemResult{Status: RedeemInvalid}, nil
	}
	if err != nil {
		return nil, err
	}

	switch token.Status {
	case models.TokenStatusExpired:
		return &RedeemResult{Status: RedeemExpired}, nil
	case models.TokenStatusUsed:
		if !token.Credited && token.UserID == userID {
			// Crashed after marking used, before crediting. Finish the credit.
			return r.credit(ctx, token)
		}
		return &RedeemResult{Status: RedeemAlreadyUsed}, nil
	}

	if token.UserID != userID {
		return &RedeemResult{Status: RedeemNotYours}, nil
	}

	if token.Expired(time.Now().UTC()) {
		if _, err := r.tokens.MarkExpired(ctx, value); err != nil {
			return nil, err
		}
		return &RedeemResult{Status: RedeemExpired}, nil
	}

	won, err := r.tokens.MarkUsed(ctx, value)
	if err != nil {
		return nil, err
	}
	if !won {
		return &RedeemResult{Status: RedeemAlreadyUsed}, nil
	}
	return r.credit(ctx, token)
}

// credit pays the token's owner, never the caller.
func (r *Registry) credit(ctx context.Context, token *models.AccessToken) (*RedeemResult, error) {
	userID := token.UserID
	won, err := r.tokens.ClaimCredit(ctx, token.TokenValue)
	if err != nil {
		return nil, err
	}
	if !won {
		return &RedeemResult{Status: RedeemAlreadyUsed}, nil
	}

	balance, err := r.users.AdjustTokens(ctx, userID, token.TokensToGrant)
	if err != nil {
		return nil, err
	}

	if err := r.activity.Record(ctx, &models.Activity{
		UserID:    userID,
		Action:    models.ActivityTokenRedeemed,
		Amount:    token.TokensToGrant,
		Timestamp: time.Now().UTC(),
	}); err != nil {
		slog.Error("Failed to log token redemption",
			slog.String("type", "db"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}

	slog.Info("Token redeemed",
		slog.String("type", "sys"),
		slog.Int64("user_id", userID),
		slog.Int64("granted", token.TokensToGrant),
		slog.Int64("balance", balance))
	return &RedeemResult{Status: RedeemGranted, Granted: token.TokensToGrant, NewBalance: balance}, nil
}
