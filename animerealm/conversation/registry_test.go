package conversation

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toyFlow is a two-step flow used to exercise the engine itself.
func toyFlow() *FlowSpec {
	return &FlowSpec{
		Start: func(_ context.Context, task *Task) Outcome {
			task.Step = "first"
			return Outcome{Status: Advance, Reply: "first?"}
		},
		Steps: map[string]StepFunc{
			"first": func(_ context.Context, task *Task, in Input) Outcome {
				if in.Skip {
					task.Step = "second"
					return Outcome{Status: Advance, Reply: "skipped"}
				}
				if in.Text == "bad" {
					return Outcome{Status: Retry, Reply: "again"}
				}
				task.Data["first"] = in.Text
				task.Step = "second"
				return Outcome{Status: Advance, Reply: "second?"}
			},
			"second": func(_ context.Context, task *Task, in Input) Outcome {
				return Outcome{Status: Complete, Reply: "done " + in.Text}
			},
		},
	}
}

func newToyRegistry() *Registry {
	r := NewRegistry()
	r.Register("toy", toyFlow())
	return r
}

func TestRegistry_NoTaskIsNotMine(t *testing.T) {
	r := newToyRegistry()
	out := r.HandleInput(context.Background(), 1, Input{Text: "hello"})
	assert.Equal(t, NotMine, out.Status)
}

func TestRegistry_FullRun(t *testing.T) {
	r := newToyRegistry()
	ctx := context.Background()

	out := r.Start(ctx, 1, "toy", nil)
	require.Equal(t, Advance, out.Status)
	require.True(t, r.Active(1))

	out = r.HandleInput(ctx, 1, Input{Text: "bad"})
	assert.Equal(t, Retry, out.Status)
	assert.True(t, r.Active(1), "retry keeps the task alive")

	out = r.HandleInput(ctx, 1, Input{Text: "value"})
	assert.Equal(t, Advance, out.Status)

	out = r.HandleInput(ctx, 1, Input{Text: "x"})
	assert.Equal(t, Complete, out.Status)
	assert.Equal(t, "done x", out.Reply)
	assert.False(t, r.Active(1), "complete discards the task")
}

func TestRegistry_CancelCommandAborts(t *testing.T) {
	r := newToyRegistry()
	ctx := context.Background()

	r.Start(ctx, 1, "toy", nil)
	out := r.HandleInput(ctx, 1, Input{Text: "/cancel"})
	assert.Equal(t, Aborted, out.Status)
	assert.False(t, r.Active(1))

	assert.False(t, r.Cancel(1), "nothing left to cancel")
}

func TestRegistry_SkipCommandBecomesSkipInput(t *testing.T) {
	r := newToyRegistry()
	ctx := context.Background()

	r.Start(ctx, 1, "toy", nil)
	out := r.HandleInput(ctx, 1, Input{Text: "/skip"})
	assert.Equal(t, Advance, out.Status)
	assert.Equal(t, "skipped", out.Reply)
}

func TestRegistry_StartReplacesRunningTask(t *testing.T) {
	r := newToyRegistry()
	ctx := context.Background()

	r.Start(ctx, 1, "toy", nil)
	r.HandleInput(ctx, 1, Input{Text: "value"})

	// Starting over resets to the first step.
	out := r.Start(ctx, 1, "toy", nil)
	require.Equal(t, Advance, out.Status)
	out = r.HandleInput(ctx, 1, Input{Text: "fresh"})
	assert.Equal(t, "second?", out.Reply)
}

func TestRegistry_TasksAreIsolatedPerAdmin(t *testing.T) {
	r := newToyRegistry()
	ctx := context.Background()

	r.Start(ctx, 1, "toy", nil)
	out := r.HandleInput(ctx, 2, Input{Text: "hello"})
	assert.Equal(t, NotMine, out.Status, "admin 2 has no task")
	assert.True(t, r.Active(1))
}

func TestRegistry_ConcurrentInputIsSerializedPerAdmin(t *testing.T) {
	var inFlight, overlaps, handled atomic.Int64
	r := NewRegistry()
	r.Register("slow", &FlowSpec{
		Start: func(_ context.Context, task *Task) Outcome {
			task.Step = "wait"
			return Outcome{Status: Advance}
		},
		Steps: map[string]StepFunc{
			"wait": func(_ context.Context, _ *Task, _ Input) Outcome {
				if inFlight.Add(1) > 1 {
					overlaps.Add(1)
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				handled.Add(1)
				return Outcome{Status: Retry}
			},
		},
	})
	ctx := context.Background()
	r.Start(ctx, 1, "slow", nil)

	// A double-tapped button delivers the same turn many times at once; every
	// delivery must run the step alone.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.HandleInput(ctx, 1, Input{Text: "tap"})
		}()
	}
	wg.Wait()

	assert.Zero(t, overlaps.Load(), "step ran concurrently for one admin")
	assert.EqualValues(t, 16, handled.Load())
	assert.True(t, r.Active(1), "retry keeps the task alive")
}

func TestRegistry_UnknownKindAborts(t *testing.T) {
	r := newToyRegistry()
	out := r.Start(context.Background(), 1, "nope", nil)
	assert.Equal(t, Aborted, out.Status)
	assert.False(t, r.Active(1))
}
