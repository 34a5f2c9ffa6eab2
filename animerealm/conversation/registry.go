// Package conversation implements the admin console's multi-step task engine:
// one active task per admin, advanced turn by turn through typed step
// functions, with /cancel and /skip handled uniformly.
package conversation

import (
	"context"
	"strings"
	"sync"
)

// Task kinds.
const (
	KindGrantPremium     = "grant_premium"
	KindRevokePremium    = "revoke_premium"
	KindBroadcast        = "broadcast"
	KindWipeData         = "wipe_data"
	KindConfigureChannel = "configure_channel"
	KindAddSeries        = "add_series"
	KindAddEpisodes      = "add_episodes"
	KindDeleteSeries     = "delete_series"
)

// Task is one in-flight multi-step operation, held in memory only. A restart
// drops all tasks; admins start over.
type Task struct {
	Kind string
	Step string
	Data map[string]any
}

// FileInfo describes a media attachment forwarded into a step.
type FileInfo struct {
	FileID       string
	FileUniqueID string
	SizeBytes    int64
	Kind         string // "video" or "document"
}

// Input is one turn of admin input.
type Input struct {
	Text string
	Skip bool
	File *FileInfo
}

// OutcomeStatus tells the router what happened to the task.
type OutcomeStatus int

const (
	// NotMine: no task active for this admin; the router falls through to
	// normal command handling.
	NotMine OutcomeStatus = iota
	// Retry: input rejected, task unchanged, same step will run again.
	Retry
	// Advance: input accepted, task moved to the next step.
	Advance
	// Complete: task finished and was discarded.
	Complete
	// Aborted: task was cancelled or failed a safety check and was discarded.
	Aborted
)

// Outcome is the engine's reply for one turn.
type Outcome struct {
	Status OutcomeStatus
	Reply  string
}

// StepFunc handles one step's input. It may mutate task.Step and task.Data to
// advance. Returning Retry leaves the task untouched for another attempt.
type StepFunc func(ctx context.Context, task *Task, in Input) Outcome

// FlowSpec wires a task kind to its steps. Start seeds the task and produces
// the opening prompt.
type FlowSpec struct {
	Start func(ctx context.Context, task *Task) Outcome
	Steps map[string]StepFunc
}

// Registry owns the per-admin task table. All turns for one admin are
// serialized through a per-admin mutex, so a double-tapped button cannot run
// the same step twice concurrently.
type Registry struct {
	flows map[string]*FlowSpec

	mu    sync.RWMutex
	tasks map[int64]*Task

	locks sync.Map // int64 -> *sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		flows: make(map[string]*FlowSpec),
		tasks: make(map[int64]*Task),
	}
}

// Register wires a flow under kind. Call during startup only.
func (r *Registry) Register(kind string, spec *FlowSpec) {
	r.flows[kind] = spec
}

func (r *Registry) lockFor(adminID int64) *sync.Mutex {
	lock, _ := r.locks.LoadOrStore(adminID, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Active reports whether adminID has a task in flight.
func (r *Registry) Active(adminID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[adminID] != nil
}

// Start begins a task of the given kind for adminID, replacing any task
// already in flight. seed carries context the flow starts from, e.g. the
// setting key being configured.
func (r *Registry) Start(ctx context.Context, adminID int64, kind string, seed map[string]any) Outcome {
	lock := r.lockFor(adminID)
	lock.Lock()
	defer lock.Unlock()

	spec, ok := r.flows[kind]
	if !ok {
		return Outcome{Status: Aborted, Reply: "Unknown operation."}
	}

	task := &Task{Kind: kind, Data: map[string]any{}}
	for k, v := range seed {
		task.Data[k] = v
	}

	out := spec.Start(ctx, task)
	switch out.Status {
	case Advance, Retry:
		r.mu.Lock()
		r.tasks[adminID] = task
		r.mu.Unlock()
	default:
		r.mu.Lock()
		delete(r.tasks, adminID)
		r.mu.Unlock()
	}
	return out
}

// Cancel drops adminID's task, reporting whether there was one.
func (r *Registry) Cancel(adminID int64) bool {
	lock := r.lockFor(adminID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.tasks[adminID] == nil {
		return false
	}
	delete(r.tasks, adminID)
	return true
}

// HandleInput routes one turn of input to adminID's task. With no task in
// flight the outcome is NotMine and the router treats the input as a normal
// message. /cancel always aborts; /skip is delivered to the step as a skip.
func (r *Registry) HandleInput(ctx context.Context, adminID int64, in Input) Outcome {
	lock := r.lockFor(adminID)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	task := r.tasks[adminID]
	r.mu.RUnlock()
	if task == nil {
		return Outcome{Status: NotMine}
	}

	switch strings.TrimSpace(in.Text) {
	case "/cancel":
		r.mu.Lock()
		delete(r.tasks, adminID)
		r.mu.Unlock()
		return Outcome{Status: Aborted, Reply: "Operation cancelled."}
	case "/skip":
		in = Input{Skip: true}
	}

	spec := r.flows[task.Kind]
	step, ok := spec.Steps[task.Step]
	if !ok {
		r.mu.Lock()
		delete(r.tasks, adminID)
		r.mu.Unlock()
		return Outcome{Status: Aborted, Reply: "Operation state was lost, please start over."}
	}

	out := step(ctx, task, in)
	if out.Status == Complete || out.Status == Aborted {
		r.mu.Lock()
		delete(r.tasks, adminID)
		r.mu.Unlock()
	}
	return out
}
