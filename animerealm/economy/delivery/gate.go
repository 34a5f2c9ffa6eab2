// Package delivery implements the download gate: the entitlement check that
// decides whether a user receives a file, spends a token doing so, and is
// refunded when the file cannot be sent.
package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// ErrWrongMediaKind signals that the stored file id cannot be sent with the
// media kind we tried; the gate retries once with the document kind.
var ErrWrongMediaKind = errors.New("file cannot be sent as this media kind")

// FileSender delivers a stored file id to a chat. SendVideo is tried first for
// video files; SendDocument is the universal fallback.
type FileSender interface {
	SendVideo(ctx context.Context, chatID int64, fileID, caption string) error
	SendDocument(ctx context.Context, chatID int64, fileID, caption string) error
}

// Denial reasons reported to the user when the gate refuses.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyQuotaReached
	DenyNoTokens
	DenySendFailed
)

// Result is the outcome of one delivery attempt.
type Result struct {
	Delivered  bool
	Reason     DenyReason
	SpentToken bool
	Refunded   bool
	Premium    bool
}

// Config holds the gate's quota knob.
type Config struct {
	DailyDownloadCap int64 `toml:"daily_download_cap"`
}

type Gate struct {
	cfg    Config
	users  repositories.UserRepository
	animes repositories.AnimeRepository
	sender FileSender
}

func NewGate(cfg Config, users repositories.UserRepository, animes repositories.AnimeRepository, sender FileSender) *Gate {
	return &Gate{cfg: cfg, users: users, animes: animes, sender: sender}
}

// Deliver runs the full gate for one episode: premium bypasses the token
// spend, everyone else passes the daily quota and then the conditional
// one-token debit. The send itself happens after the debit; a send that fails
// both media kinds refunds the token so the net cost of a failed delivery is
// zero.
func (g *Gate) Deliver(ctx context.Context, userID int64, episodeID primitive.ObjectID, caption string) (*Result, error) {
	episode, err := g.animes.GetEpisode(ctx, episodeID)
	if err != nil {
		return nil, err
	}

	user, err := g.users.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	premium := user.PremiumActive(time.Now().UTC())
	spent := false

	if !premium {
		ok, err := g.users.CanDownloadToday(ctx, userID, g.cfg.DailyDownloadCap)
		if err != nil {
			return nil, err
		}
		if !ok {
			return &Result{Reason: DenyQuotaReached}, nil
		}

		spent, err = g.users.DebitToken(ctx, userID)
		if err != nil {
			return nil, err
		}
		if !spent {
			return &Result{Reason: DenyNoTokens}, nil
		}
	}

	if err := g.send(ctx, userID, episode, caption); err != nil {
		result := &Result{Reason: DenySendFailed, SpentToken: spent, Premium: premium}
		if spent {
			if _, refundErr := g.users.AdjustTokens(ctx, userID, 1); refundErr != nil {
				slog.Error("Failed to refund token after delivery failure",
					slog.String("type", "db"),
					slog.Int64("user_id", userID),
					slog.Any("error", refundErr))
			} else {
				result.Refunded = true
			}
		}
		slog.Error("Episode delivery failed",
			slog.String("type", "error"),
			slog.Int64("user_id", userID),
			slog.String("episode_id", episodeID.Hex()),
			slog.Any("error", err))
		return result, nil
	}

	// Post-success bookkeeping is best effort: the user already has the file.
	if err := g.users.RecordDownload(ctx, userID, episode.AnimeID, episode.ID); err != nil {
		slog.Error("Failed to record download",
			slog.String("type", "db"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}
	if err := g.animes.IncrementDownloadCount(ctx, episode.AnimeID, episode.ID); err != nil {
		slog.Error("Failed to bump download counters",
			slog.String("type", "db"),
			slog.String("episode_id", episodeID.Hex()),
			slog.Any("error", err))
	}

	return &Result{Delivered: true, SpentToken: spent, Premium: premium}, nil
}

// send tries the media kind matching the stored file type, falling back to a
// document exactly once when the API rejects the kind.
func (g *Gate) send(ctx context.Context, chatID int64, episode *models.Episode, caption string) error {
	if episode.FileType != "video" {
		return g.sender.SendDocument(ctx, chatID, episode.FileID, caption)
	}

	err := g.sender.SendVideo(ctx, chatID, episode.FileID, caption)
	if errors.Is(err, ErrWrongMediaKind) {
		return g.sender.SendDocument(ctx, chatID, episode.FileID, caption)
	}
	return err
}
