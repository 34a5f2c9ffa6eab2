package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/animerealm/animerealm/animerealm/database/models"
	"github.com/animerealm/animerealm/animerealm/database/repositories"
)

// Notifier delivers best-effort messages to users affected by admin actions.
type Notifier interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

// PremiumFlows implements the grant and revoke conversations.
type PremiumFlows struct {
	users    repositories.UserRepository
	notifier Notifier
	adminID  func(task *Task) int64
}

func NewPremiumFlows(users repositories.UserRepository, notifier Notifier) *PremiumFlows {
	return &PremiumFlows{
		users:    users,
		notifier: notifier,
		adminID:  taskAdminID,
	}
}

// SeedAdminID is the seed key every flow start must carry: the acting admin.
const SeedAdminID = "admin_id"

func taskAdminID(task *Task) int64 {
	id, _ := task.Data[SeedAdminID].(int64)
	return id
}

func (f *PremiumFlows) RegisterOn(r *Registry) {
	r.Register(KindGrantPremium, &FlowSpec{
		Start: f.startGrant,
		Steps: map[string]StepFunc{
			"user_identifier": f.grantUserStep,
			"duration_days":   f.grantDurationStep,
			"confirm":         f.grantConfirmStep,
		},
	})
	r.Register(KindRevokePremium, &FlowSpec{
		Start: f.startRevoke,
		Steps: map[string]StepFunc{
			"user_identifier": f.revokeUserStep,
			"confirm":         f.revokeConfirmStep,
		},
	})
}

func (f *PremiumFlows) startGrant(_ context.Context, task *Task) Outcome {
	task.Step = "user_identifier"
	return Outcome{Status: Advance, Reply: "Who gets premium? Send a numeric user id or @username."}
}

// resolveUser accepts a numeric id or a @username and returns the stored user.
func (f *PremiumFlows) resolveUser(ctx context.Context, text string) (*models.User, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, "Send a numeric user id or @username."
	}

	if id, err := strconv.ParseInt(text, 10, 64); err == nil {
		user, err := f.users.Get(ctx, id)
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Sprintf("No user with id %d has talked to the bot yet.", id)
		}
		if err != nil {
			return nil, "Lookup failed, try again."
		}
		return user, ""
	}

	user, err := f.users.GetByUsername(ctx, text)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, fmt.Sprintf("No user %s found. They must have talked to the bot at least once.", text)
	}
	if err != nil {
		return nil, "Lookup failed, try again."
	}
	return user, ""
}

func (f *PremiumFlows) grantUserStep(ctx context.Context, task *Task, in Input) Outcome {
	user, problem := f.resolveUser(ctx, in.Text)
	if problem != "" {
		return Outcome{Status: Retry, Reply: problem}
	}

	task.Data["user_id"] = user.UserID
	task.Data["mention"] = user.Mention()
	task.Step = "duration_days"
	return Outcome{Status: Advance, Reply: fmt.Sprintf("Granting premium to %s. For how many days?", user.Mention())}
}

func (f *PremiumFlows) grantDurationStep(_ context.Context, task *Task, in Input) Outcome {
	days, err := strconv.Atoi(strings.TrimSpace(in.Text))
	if err != nil || days <= 0 {
		return Outcome{Status: Retry, Reply: "Send a positive number of days."}
	}

	task.Data["days"] = days
	task.Step = "confirm"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Grant %d days of premium to %s? (yes/no)", days, task.Data["mention"])}
}

func (f *PremiumFlows) grantConfirmStep(ctx context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
	case noAnswer:
		return Outcome{Status: Aborted, Reply: "Grant cancelled."}
	default:
		return Outcome{Status: Retry, Reply: "Answer yes or no."}
	}

	userID := task.Data["user_id"].(int64)
	days := task.Data["days"].(int)
	adminID := f.adminID(task)

	expiry, err := f.users.GrantPremium(ctx, userID, days, adminID)
	if err != nil {
		slog.Error("Premium grant failed",
			slog.String("type", "error"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "Grant failed, check the logs."}
	}

	if err := f.notifier.SendText(ctx, userID, fmt.Sprintf(
		"You now have premium access until %s. Enjoy unlimited downloads!",
		expiry.Format("2 Jan 2006"))); err != nil {
		slog.Warn("Premium grant notification failed",
			slog.String("type", "sys"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}

	return Outcome{Status: Complete, Reply: fmt.Sprintf(
		"Done. %s has premium until %s.", task.Data["mention"], expiry.Format("2 Jan 2006 15:04 MST"))}
}

func (f *PremiumFlows) startRevoke(_ context.Context, task *Task) Outcome {
	task.Step = "user_identifier"
	return Outcome{Status: Advance, Reply: "Whose premium should be revoked? Send a numeric user id or @username."}
}

func (f *PremiumFlows) revokeUserStep(ctx context.Context, task *Task, in Input) Outcome {
	user, problem := f.resolveUser(ctx, in.Text)
	if problem != "" {
		return Outcome{Status: Retry, Reply: problem}
	}
	if !user.PremiumActive(time.Now().UTC()) {
		return Outcome{Status: Retry, Reply: fmt.Sprintf("%s is not premium. Pick someone else or /cancel.", user.Mention())}
	}

	task.Data["user_id"] = user.UserID
	task.Data["mention"] = user.Mention()
	task.Step = "confirm"
	return Outcome{Status: Advance, Reply: fmt.Sprintf("Revoke premium from %s? (yes/no)", user.Mention())}
}

func (f *PremiumFlows) revokeConfirmStep(ctx context.Context, task *Task, in Input) Outcome {
	switch parseYesNo(in.Text) {
	case yesAnswer:
	case noAnswer:
		return Outcome{Status: Aborted, Reply: "Revoke cancelled."}
	default:
		return Outcome{Status: Retry, Reply: "Answer yes or no."}
	}

	userID := task.Data["user_id"].(int64)
	err := f.users.RevokePremium(ctx, userID, f.adminID(task))
	if errors.Is(err, repositories.ErrNotPremium) {
		return Outcome{Status: Complete, Reply: "They were no longer premium; nothing to do."}
	}
	if err != nil {
		slog.Error("Premium revoke failed",
			slog.String("type", "error"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
		return Outcome{Status: Aborted, Reply: "Revoke failed, check the logs."}
	}

	if err := f.notifier.SendText(ctx, userID, "Your premium access has ended."); err != nil {
		slog.Warn("Premium revoke notification failed",
			slog.String("type", "sys"),
			slog.Int64("user_id", userID),
			slog.Any("error", err))
	}

	return Outcome{Status: Complete, Reply: fmt.Sprintf("Premium revoked from %s.", task.Data["mention"])}
}

type yesNo int

const (
	unclearAnswer yesNo = iota
	yesAnswer
	noAnswer
)

func parseYesNo(text string) yesNo {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "y":
		return yesAnswer
	case "no", "n":
		return noAnswer
	}
	return unclearAnswer
}
