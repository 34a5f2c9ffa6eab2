package services

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"golang.org/x/time/rate"
)

// TextSender sends a plain text message to a chat. Implemented by the
// Telegram adapter; tests supply a fake.
type TextSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// Recipient failure classes tallied by a broadcast run.
const (
	FailureBlocked     = "blocked"
	FailureDeactivated = "deactivated"
	FailureForbidden   = "forbidden"
	FailureOther       = "other"
)

// BroadcastReport is the final tally of one broadcast run.
type BroadcastReport struct {
	Total    int
	Sent     int
	Failed   int
	Failures map[string]int
	Took     time.Duration
}

// Broadcaster fans one message out to every known user at a paced rate.
type Broadcaster struct {
	users   repositories.UserRepository
	sender  TextSender
	limiter *rate.Limiter
}

// NewBroadcaster paces sends at perSecond messages per second, the ceiling
// the bot API tolerates for bulk sends without tripping flood control.
func NewBroadcaster(users repositories.UserRepository, sender TextSender, perSecond float64) *Broadcaster {
	return &Broadcaster{
		users:   users,
		sender:  sender,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
	}
}

// Send delivers text to every user id in the store. Per-recipient failures are
// classified and tallied; the run never aborts early because one recipient
// blocked the bot or deleted their account.
func (b *Broadcaster) Send(ctx context.Context, text string) (*BroadcastReport, error) {
	ids, err := b.users.AllIDs(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	report := &BroadcastReport{
		Total:    len(ids),
		Failures: make(map[string]int),
	}

	for _, id := range ids {
		if err := b.limiter.Wait(ctx); err != nil {
			return report, err
		}

		if err := b.sender.SendText(ctx, id, text); err != nil {
			class := classifySendError(err)
			report.Failed++
			report.Failures[class]++
			slog.Debug("Broadcast delivery failed",
				slog.String("type", "sys"),
				slog.Int64("user_id", id),
				slog.String("class", class),
				slog.Any("error", err))
			continue
		}
		report.Sent++
	}

	report.Took = time.Since(start)
	slog.Info("Broadcast finished",
		slog.String("type", "sys"),
		slog.Int("total", report.Total),
		slog.Int("sent", report.Sent),
		slog.Int("failed", report.Failed),
		slog.Duration("took", report.Took))
	return report, nil
}

// classifySendError buckets a delivery error by the bot API's error text.
// The API reports these conditions as message strings, not codes.
func classifySendError(err error) string {
	if err == nil {
		return ""
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "blocked by the user"):
		return FailureBlocked
	case strings.Contains(msg, "user is deactivated"):
		return FailureDeactivated
	case strings.Contains(msg, "forbidden"):
		return FailureForbidden
	default:
		return FailureOther
	}
}
