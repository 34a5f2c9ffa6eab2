package conversation

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"strings"

	"github.com/animerealm/animerealm/animerealm/database"
)

// Exact phrases the wipe flow demands. Both must be typed verbatim; anything
// else aborts the flow rather than retrying, so a stray message can never
// creep toward deletion.
const (
	wipePhraseOne         = "YES I AM ABSOLUTELY SURE"
	wipePhraseTwoTemplate = "DELETE ALL MY BOT DATA NOW - %s"
)

const wipeCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Wiper deletes everything. Satisfied by *database.DB.
type Wiper interface {
	WipeAll(ctx context.Context) []database.WipeResult
}

// WipeFlow is the double-confirmed destructive reset. Only the owner reaches
// it; the router enforces that before starting the task.
type WipeFlow struct {
	db Wiper
}

func NewWipeFlow(db Wiper) *WipeFlow {
	return &WipeFlow{db: db}
}

func (f *WipeFlow) RegisterOn(r *Registry) {
	r.Register(KindWipeData, &FlowSpec{
		Start: f.start,
		Steps: map[string]StepFunc{
			"phrase_one": f.phraseOneStep,
			"phrase_two": f.phraseTwoStep,
		},
	})
}

func (f *WipeFlow) start(_ context.Context, task *Task) Outcome {
	task.Step = "phrase_one"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"This deletes EVERYTHING: users, balances, the whole catalog, all history. There is no undo.\n\nType exactly:\n%s",
		wipePhraseOne)}
}

func (f *WipeFlow) phraseOneStep(_ context.Context, task *Task, in Input) Outcome {
	if in.Text != wipePhraseOne {
		return Outcome{Status: Aborted, Reply: "That did not match. Wipe aborted."}
	}

	// A fresh code each time the flow reaches this point; a phrase copied
	// from an earlier attempt can never confirm this one.
	code := wipeCode()
	task.Data["code"] = code
	task.Step = "phrase_two"
	return Outcome{Status: Advance, Reply: fmt.Sprintf(
		"Final confirmation. Type exactly:\n"+wipePhraseTwoTemplate, code)}
}

func (f *WipeFlow) phraseTwoStep(ctx context.Context, task *Task, in Input) Outcome {
	code := task.Data["code"].(string)
	if in.Text != fmt.Sprintf(wipePhraseTwoTemplate, code) {
		return Outcome{Status: Aborted, Reply: "That did not match. Wipe aborted."}
	}

	slog.Warn("Full data wipe confirmed, starting",
		slog.String("type", "sys"),
		slog.Int64("admin_id", taskAdminID(task)))

	results := f.db.WipeAll(ctx)

	var b strings.Builder
	b.WriteString("Wipe finished:\n")
	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			fmt.Fprintf(&b, "- %s: FAILED (%v)\n", res.Collection, res.Err)
			continue
		}
		fmt.Fprintf(&b, "- %s: %d deleted\n", res.Collection, res.Deleted)
	}
	if failed > 0 {
		fmt.Fprintf(&b, "\n%d collection(s) failed, re-run after checking the logs.", failed)
	}
	return Outcome{Status: Complete, Reply: b.String()}
}

func wipeCode() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the platform is broken; still never
		// return a predictable code.
		panic(err)
	}
	for i, b := range buf {
		buf[i] = wipeCodeAlphabet[int(b)%len(wipeCodeAlphabet)]
	}
	return string(buf)
}
