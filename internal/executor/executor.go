// Package executor implements a named, grouped, delayed task runner with
// cancel-by-group, as used by the Manager to arm and disarm per-event
// timers and to serialize per-event side effects (store writes, broker
// publishes).
//
// A task is identified by (group_id, name); scheduling into a live slot is
// a programmer error; a negative delay runs the task immediately and logs
// a warning instead of refusing, so that a process restarted after
// downtime self-heals by firing overdue timers right away.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Func is a task body. It receives a context that is cancelled if its
// group is cancelled before the task fires.
type Func func(ctx context.Context)

// TaskInfo is a diagnostic snapshot of a scheduled task.
type TaskInfo struct {
	GroupID string
	Name    string
	At      time.Time
}

type task struct {
	cancel context.CancelFunc
	timer  *time.Timer
	at     time.Time
}

// Executor runs named tasks after a delay, grouped for bulk cancellation.
// All exported methods are safe for concurrent use; callbacks themselves
// are expected to run against a single logically-serialized owner (the
// Manager), which is why Executor only guards its own bookkeeping and
// does not attempt to serialize callback bodies against each other.
type Executor struct {
	log *slog.Logger

	mu     sync.Mutex
	groups map[string]map[string]*task
}

// New creates an Executor. A nil logger defaults to slog.Default().
func New(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		log:    log,
		groups: make(map[string]map[string]*task),
	}
}

// Schedule registers fn to run after delay under (groupID, name).
//
// A (groupID, name) collision with a still-pending task is a programmer
// error and panics. A negative delay runs fn immediately (via a zero-delay timer)
// and logs a warning, rather than refusing the schedule, so that a
// manager recovering from an outage self-heals on overdue timers.
func (e *Executor) Schedule(ctx context.Context, groupID, name string, delay time.Duration, fn Func) {
	e.mu.Lock()
	group, ok := e.groups[groupID]
	if !ok {
		group = make(map[string]*task)
		e.groups[groupID] = group
	}
	if _, exists := group[name]; exists {
		e.mu.Unlock()
		panic(fmt.Sprintf("executor: task %s:%s already scheduled", groupID, name))
	}

	if delay < 0 {
		e.log.Warn("negative delay for task, running immediately",
			"group", groupID, "name", name, "delay", delay)
		delay = 0
	}

	taskCtx, cancel := context.WithCancel(ctx)
	at := time.Now().Add(delay)
	t := &task{cancel: cancel, at: at}
	group[name] = t

	t.timer = time.AfterFunc(delay, func() {
		defer e.remove(groupID, name)
		if taskCtx.Err() != nil {
			return
		}
		fn(taskCtx)
	})
	e.mu.Unlock()

	e.log.Info("scheduled task", "group", groupID, "name", name, "delay", delay, "at", at)
}

// remove drops a task from its group once it has fired or been cancelled
// individually. It is a no-op if the group or task is already gone (e.g.
// the whole group was cancelled concurrently).
func (e *Executor) remove(groupID, name string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	group, ok := e.groups[groupID]
	if !ok {
		return
	}
	delete(group, name)
	if len(group) == 0 {
		delete(e.groups, groupID)
	}
}

// Cancel removes every task in groupID and signals cancellation to each.
// A task observing cancellation (via its context) must exit without side
// effects; Cancel itself does not block waiting for in-flight callbacks.
func (e *Executor) Cancel(groupID string) {
	e.mu.Lock()
	group, ok := e.groups[groupID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.groups, groupID)
	e.mu.Unlock()

	for _, t := range group {
		t.timer.Stop()
		t.cancel()
	}
}

// Tasks returns a snapshot of pending tasks. An empty groupID lists every
// group; otherwise only tasks in that group are returned.
func (e *Executor) Tasks(groupID string) []TaskInfo {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []TaskInfo
	if groupID == "" {
		for g, tasks := range e.groups {
			for name, t := range tasks {
				out = append(out, TaskInfo{GroupID: g, Name: name, At: t.at})
			}
		}
		return out
	}

	for name, t := range e.groups[groupID] {
		out = append(out, TaskInfo{GroupID: groupID, Name: name, At: t.at})
	}
	return out
}
