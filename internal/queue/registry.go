package queue

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"gebr/internal/job"
)

type entry struct {
	name    string
	pending []*job.Job
	active  *job.Job
}

func (e *entry) empty() bool {
	return e.active == nil && len(e.pending) == 0
}

// Info summarizes one queue.
type Info struct {
	Name     string `json:"name"`
	Busy     bool   `json:"busy"`
	ActiveID string `json:"active_id,omitempty"`
	Pending  int    `json:"pending"`
	Reserved bool   `json:"reserved"`
}

// Registry maps queue names to queues.
type Registry struct {
	queues   map[string]*entry
	reserved map[string]struct{}
}

// NewRegistry creates a registry holding the reserved queues.
func NewRegistry(reserved ...string) *Registry {
	r := &Registry{
		queues:   make(map[string]*entry),
		reserved: make(map[string]struct{}),
	}
	for _, name := range reserved {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		r.reserved[name] = struct{}{}
		r.queues[name] = &entry{name: name}
	}
	return r
}

// Reserved reports whether name survives draining.
func (r *Registry) Reserved(name string) bool {
	_, ok := r.reserved[name]
	return ok
}

func (r *Registry) ensure(name string) *entry {
	q, ok := r.queues[name]
	if !ok {
		q = &entry{name: name}
		r.queues[name] = q
	}
	return q
}

func (r *Registry) gc(q *entry) {
	if q.empty() && !r.Reserved(q.name) {
		delete(r.queues, q.name)
	}
}

// Enqueue appends j to the pending list of the named queue, creating the
// queue on first use.
func (r *Registry) Enqueue(name string, j *job.Job) {
	q := r.ensure(name)
	q.pending = append(q.pending, j)
}

// Activate marks j as the running job of an idle queue.
func (r *Registry) Activate(name string, j *job.Job) error {
	q := r.ensure(name)
	if q.active != nil {
		return fmt.Errorf("activate %s on %q: %w", j.ID, name, ErrBusy)
	}
	q.active = j
	return nil
}

// DequeueIfIdle pops the head of an idle queue and marks it active. It
// returns nil when the queue is busy, empty or unknown.
func (r *Registry) DequeueIfIdle(name string) *job.Job {
	q, ok := r.queues[name]
	if !ok || q.active != nil || len(q.pending) == 0 {
		return nil
	}
	q.active = q.pending[0]
	q.pending = q.pending[1:]
	return q.active
}

// Release is called when j reached a terminal status. When j is the active
// job of its queue, the next pending job becomes active and is returned;
// otherwise the queue goes idle. Jobs that are not active leave the queue
// untouched.
func (r *Registry) Release(name string, j *job.Job) *job.Job {
	q, ok := r.queues[name]
	if !ok || q.active != j {
		return nil
	}
	q.active = nil
	next := r.DequeueIfIdle(name)
	if next == nil {
		r.gc(q)
	}
	return next
}

// Remove drops j from the pending list of the named queue.
func (r *Registry) Remove(name string, j *job.Job) bool {
	q, ok := r.queues[name]
	if !ok {
		return false
	}
	idx := slices.Index(q.pending, j)
	if idx < 0 {
		return false
	}
	q.pending = slices.Delete(q.pending, idx, idx+1)
	r.gc(q)
	return true
}

// Rename moves queue oldName to newName and relabels every job in it. The
// relabeled jobs are returned in queue order, active job first.
func (r *Registry) Rename(oldName, newName string) ([]*job.Job, error) {
	q, ok := r.queues[oldName]
	if !ok {
		return nil, fmt.Errorf("rename %q: %w", oldName, ErrUnknownQueue)
	}
	if oldName == newName {
		return nil, nil
	}
	if existing, ok := r.queues[newName]; ok && !existing.empty() {
		return nil, fmt.Errorf("rename %q to %q: %w", oldName, newName, ErrQueueExists)
	}

	delete(r.queues, oldName)
	q.name = newName
	r.queues[newName] = q
	if r.Reserved(oldName) {
		r.queues[oldName] = &entry{name: oldName}
	}

	moved := make([]*job.Job, 0, len(q.pending)+1)
	if q.active != nil {
		moved = append(moved, q.active)
	}
	moved = append(moved, q.pending...)
	for _, j := range moved {
		j.Queue = newName
	}
	r.gc(q)
	return moved, nil
}

// RemoveQueue deletes an idle queue and returns its pending jobs.
func (r *Registry) RemoveQueue(name string) ([]*job.Job, error) {
	q, ok := r.queues[name]
	if !ok {
		return nil, fmt.Errorf("remove %q: %w", name, ErrUnknownQueue)
	}
	if q.active != nil {
		return nil, fmt.Errorf("remove %q: %w", name, ErrBusy)
	}
	pending := q.pending
	q.pending = nil
	delete(r.queues, name)
	if r.Reserved(name) {
		r.queues[name] = &entry{name: name}
	}
	return pending, nil
}

// Busy reports whether the named queue has an active job.
func (r *Registry) Busy(name string) bool {
	q, ok := r.queues[name]
	return ok && q.active != nil
}

// Active returns the active job of the named queue.
func (r *Registry) Active(name string) *job.Job {
	if q, ok := r.queues[name]; ok {
		return q.active
	}
	return nil
}

// Pending returns a copy of the pending list.
func (r *Registry) Pending(name string) []*job.Job {
	if q, ok := r.queues[name]; ok {
		return append([]*job.Job(nil), q.pending...)
	}
	return nil
}

// Names lists the queues in lexical order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.queues))
	for name := range r.queues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot summarizes every queue in lexical order.
func (r *Registry) Snapshot() []Info {
	names := r.Names()
	out := make([]Info, 0, len(names))
	for _, name := range names {
		q := r.queues[name]
		info := Info{
			Name:     name,
			Busy:     q.active != nil,
			Pending:  len(q.pending),
			Reserved: r.Reserved(name),
		}
		if q.active != nil {
			info.ActiveID = q.active.ID
		}
		out = append(out, info)
	}
	return out
}
