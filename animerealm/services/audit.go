package services

import (
	"context"
	"log/slog"

	"github.com/animerealm/animerealm/animerealm/settings"
)

// Audit mirrors notable events into the configured log channels. Every send is
// best effort: an unset channel or a failed delivery never fails the
// triggering operation.
type Audit struct {
	cell   *settings.Cell
	sender TextSender
}

func NewAudit(cell *settings.Cell, sender TextSender) *Audit {
	return &Audit{cell: cell, sender: sender}
}

func (a *Audit) Request(ctx context.Context, text string) {
	a.emit(ctx, a.cell.RequestLogChannel(), text)
}

func (a *Audit) Activity(ctx context.Context, text string) {
	a.emit(ctx, a.cell.ActivityLogChannel(), text)
}

func (a *Audit) Error(ctx context.Context, text string) {
	a.emit(ctx, a.cell.ErrorLogChannel(), text)
}

func (a *Audit) emit(ctx context.Context, channelID int64, text string) {
	if channelID == 0 {
		return
	}
	if err := a.sender.SendText(ctx, channelID, text); err != nil {
		slog.Warn("Audit channel delivery failed",
			slog.String("type", "sys"),
			slog.Int64("channel_id", channelID),
			slog.Any("error", err))
	}
}
