package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/animerealm/animerealm/animerealm/services"
)

// BroadcastFlow collects a message and a confirmation, then fans it out in the
// background so the admin console is not blocked for the duration of the run.
type BroadcastFlow struct {
	broadcaster *services.Broadcaster
	notifier    Notifier
}

func NewBroadcastFlow(broadcaster *services.Broadcaster, notifier Notifier) *BroadcastFlow {
	return &BroadcastFlow{broadcaster: broadcaster, notifier: notifier}
}

func (f *BroadcastFlow) RegisterOn(r *Registry) {
	r.Register(KindBroadcast, &FlowSpec{
		Start: f.start,
		Steps: map[string]StepFunc{
			"message": f.messageStep,
			"confirm": f.confirmStep,
		},
	})
}

func (f *BroadcastFlow) start(_ context.Context, task *Task) Outcome {
	task.Step = "message"
	return Outcome{Status: Advance, Reply: "Send the broadcast message."}
}

func (f *BroadcastFlow) messageStep(_ context.Context, task *Task, in Input) Outcome {
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return Outcome{Status: Retry, Reply: "The broadcast needs some text."}
	}

	task.Data["message"] = text
	task.Step = "confirm"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"This will be sent to every user:\n\n%s\n\nSend it? (yes/no)", text)}
}

func (f *BroadcastFlow) confirmStep(_ context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
	case noAnswer:
		return Outcome{Status: Aborted, Reply: "Broadcast cancelled."}
	default:
		return Outcome{Status: Retry, Reply: "Answer yes or no."}
	}

	message := task.Data["message"].(string)
	adminID := taskAdminID(task)

	// The run is paced and can take minutes on a large user base; detach it
	// and report back to the admin when it finishes.
	go func() {
		ctx := context.Background()
		report, err := f.broadcaster.Send(ctx, message)
		if err != nil {
			slog.Error("Broadcast run failed",
				slog.String("type", "error"),
				slog.Any("error", err))
			f.report(ctx, adminID, "Broadcast failed before completing, check the logs.")
			return
		}
		f.report(ctx, adminID, fmt.Sprintf(
			"Broadcast finished: %d sent, %d failed (blocked %d, deactivated %d, forbidden %d, other %d). Took %s.",
			report.Sent, report.Failed,
			report.Failures[services.FailureBlocked],
			report.Failures[services.FailureDeactivated],
			report.Failures[services.FailureForbidden],
			report.Failures[services.FailureOther],
			report.Took.Round(time.Second)))
	}()

	return Outcome{Status: Complete, Reply: "Broadcast started, you will get a report when it finishes."}
}

func (f *BroadcastFlow) report(ctx context.Context, adminID int64, text string) {
	if err := f.notifier.SendText(ctx, adminID, text); err != nil {
		slog.Warn("Broadcast report delivery failed",
			slog.String("type", "sys"),
			slog.Int64("admin_id", adminID),
			slog.Any("error", err))
	}
}
