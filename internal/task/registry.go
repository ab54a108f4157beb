// Package task provides the in-process registry of asynchronous work:
// uploads and archive compressions. State for one task id is linearizable —
// every mutation runs under that entry's lock — and terminal states are
// sticky: once a task is done or failed no later update can change it.
package task

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Kind labels what sort of work a task tracks.
type Kind string

const (
	KindUpload   Kind = "upload"
	KindCompress Kind = "compress"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusUploading Status = "uploading"
	StatusStarted   Status = "started"
	StatusDone      Status = "done"
	StatusFailed    Status = "failed"
	StatusExpired   Status = "expired"
	StatusNotFound  Status = "not_found"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Task is one tracked unit of asynchronous work. Written/Total serve
// uploads; Percent serves compressions (-1 on failure).
type Task struct {
	ID        string    `json:"task_id"`
	Kind      Kind      `json:"kind"`
	Filename  string    `json:"filename,omitempty"`
	Status    Status    `json:"status"`
	Written   int64     `json:"written"`
	Total     int64     `json:"total"`
	Percent   int       `json:"percent"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type entry struct {
	mu   sync.Mutex
	task Task
}

// Registry is a concurrent keyed store of task state with TTL-based expiry.
// Tasks older than the TTL are reported as expired on read regardless of
// their recorded status; a background janitor prunes them.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// NewRegistry creates a registry whose tasks expire ttl after creation.
func NewRegistry(ttl time.Duration) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Create inserts a new task. The registry stamps timestamps; an empty status
// defaults to started.
func (r *Registry) Create(t Task) error {
	if t.ID == "" {
		return fmt.Errorf("task id required")
	}
	if t.Status == "" {
		t.Status = StatusStarted
	}
	now := r.now()
	t.CreatedAt = now
	t.UpdatedAt = now

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[t.ID]; exists {
		return fmt.Errorf("task %s already exists", t.ID)
	}
	r.entries[t.ID] = &entry{task: t}
	return nil
}

// Update applies a mutation to a live task. Returns false without applying
// when the task is absent or already terminal, so straggling progress
// updates can never overwrite a terminal state.
func (r *Registry) Update(id string, apply func(*Task)) bool {
	e := r.lookup(id)
	if e == nil {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.task.Status.Terminal() {
		return false
	}
	apply(&e.task)
	e.task.UpdatedAt = r.now()
	return true
}

// UpdateProgress records byte counters for an upload task. Written is
// monotonic: a lower value than the recorded one is ignored.
func (r *Registry) UpdateProgress(id string, written, total int64) bool {
	return r.Update(id, func(t *Task) {
		if written > t.Written {
			t.Written = written
		}
		if total > t.Total {
			t.Total = total
		}
	})
}

// SetPercent records compression progress, clamped to [0, 100].
func (r *Registry) SetPercent(id string, percent int) bool {
	return r.Update(id, func(t *Task) {
		if percent > 100 {
			percent = 100
		}
		if percent > t.Percent {
			t.Percent = percent
		}
	})
}

// Complete moves a task to done.
func (r *Registry) Complete(id string) bool {
	return r.Update(id, func(t *Task) {
		t.Status = StatusDone
	})
}

// Fail moves a task to failed and records the cause. Compression tasks
// additionally report a -1 percent.
func (r *Registry) Fail(id string, cause string) bool {
	return r.Update(id, func(t *Task) {
		t.Status = StatusFailed
		t.Error = cause
		if t.Kind == KindCompress {
			t.Percent = -1
		}
	})
}

// Get returns a snapshot of a task's state. Unknown ids yield a synthetic
// not_found snapshot; tasks past their TTL yield a synthetic expired one
// without mutating the stored state.
func (r *Registry) Get(id string) Task {
	e := r.lookup(id)
	if e == nil {
		return Task{ID: id, Status: StatusNotFound}
	}

	e.mu.Lock()
	snapshot := e.task
	e.mu.Unlock()

	if r.now().Sub(snapshot.CreatedAt) > r.ttl {
		snapshot.Status = StatusExpired
	}
	return snapshot
}

// Run prunes expired tasks at the given interval until ctx is cancelled.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.prune()
		}
	}
}

func (r *Registry) prune() {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		e.mu.Lock()
		stale := e.task.CreatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(r.entries, id)
		}
	}
}

func (r *Registry) lookup(id string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[id]
}
