package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/animerealm/animerealm/animerealm/database/repositories"
	"github.com/animerealm/animerealm/animerealm/settings"
)

// SeedSettingKey selects which channel a configure-channel task is setting.
const SeedSettingKey = "setting_key"

var channelSettingLabels = map[string]string{
	repositories.SettingRequestLogChannel:  "request log",
	repositories.SettingActivityLogChannel: "activity log",
	repositories.SettingErrorLogChannel:    "error log",
}

// ChannelFlow reconfigures a log channel at runtime: parse the id, prove the
// bot can post there with a probe message, then persist and apply.
type ChannelFlow struct {
	repo     repositories.SettingsRepository
	cell     *settings.Cell
	notifier Notifier
}

func NewChannelFlow(repo repositories.SettingsRepository, cell *settings.Cell, notifier Notifier) *ChannelFlow {
	return &ChannelFlow{repo: repo, cell: cell, notifier: notifier}
}

func (f *ChannelFlow) RegisterOn(r *Registry) {
	r.Register(KindConfigureChannel, &FlowSpec{
		Start: f.start,
		Steps: map[string]StepFunc{
			"channel_id": f.channelStep,
		},
	})
}

func (f *ChannelFlow) start(_ context.Context, task *Task) Outcome {
	key, _ := task.Data[SeedSettingKey].(string)
	label, ok := channelSettingLabels[key]
	if !ok {
		return Outcome{Status: Aborted, Reply: "Unknown channel setting."}
	}

	task.Step = "channel_id"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Send the numeric chat id for the %s channel. The bot must already be a member able to post there.", label)}
}

func (f *ChannelFlow) channelStep(ctx context.Context, task *Task, in Input) Outcome {
	channelID, err := strconv.ParseInt(strings.TrimSpace(in.Text), 10, 64)
	if err != nil {
		return Outcome{Status: Retry, Reply: "That is not a numeric chat id. Try again or /cancel."}
	}

	key := task.Data[SeedSettingKey].(string)
	label := channelSettingLabels[key]

	// Probe before persisting: a channel we cannot post to is worse than the
	// old configuration.
	probe := fmt.Sprintf("This channel is now the %s channel.", label)
	if err := f.notifier.SendText(ctx, channelID, probe); err != nil {
		return Outcome{Status: Retry, Reply: fmt.Sprintf(
			"Could not post there (%v). Check the id and the bot's membership, then try again.", err)}
	}

	if err := f.repo.Set(ctx, key, channelID); err != nil {
		slog.Error("Failed to persist channel setting",
			slog.String("type", "db"),
			slog.String("key", key),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "The probe worked but saving failed, check the logs."}
	}
	f.cell.Apply(key, channelID)

	return Outcome{Status: Complete, Reply: fmt.Sprintf(
		"The %s channel is now %d.", label, channelID)}
}
