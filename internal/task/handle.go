package task

import (
	"sync"

	"github.com/google/uuid"
)

// Registry tracks live tasks by ID so that preconditions and observers can
// hold weak, non-owning references. A task is registered when it is
// submitted and deregistered after its did-finish observers have run;
// resolving a handle after that point reports the task as gone.
type Registry struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
}

// NewRegistry creates an empty liveness registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[uuid.UUID]*Task)}
}

// Register adds t to the registry. Registering the same task twice, or a
// task that already claimed its finish transition, is a no-op. The task
// remembers the registry so it can retire itself once finished.
func (r *Registry) Register(t *Task) {
	if t.State().IsTerminal() {
		return
	}
	r.mu.Lock()
	if _, ok := r.tasks[t.id]; !ok {
		r.tasks[t.id] = t
		t.reg.Store(r)
	}
	r.mu.Unlock()
}

// Handle returns a weak reference to t scoped to this registry.
func (r *Registry) Handle(t *Task) Handle {
	return Handle{id: t.id, reg: r}
}

// Lookup resolves a task ID to a live task.
func (r *Registry) Lookup(id uuid.UUID) (*Task, bool) {
	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()
	return t, ok
}

// Len returns the number of live tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

func (r *Registry) deregister(id uuid.UUID) {
	r.mu.Lock()
	delete(r.tasks, id)
	r.mu.Unlock()
}

// Handle is a non-owning reference to a task. It never keeps the task
// alive in the registry; callers must Resolve before dereferencing and
// must tolerate the task being gone.
type Handle struct {
	id  uuid.UUID
	reg *Registry
}

// ID returns the referenced task's identity.
func (h Handle) ID() uuid.UUID { return h.id }

// Resolve returns the live task, or (nil, false) if the task has finished
// and been retired, or was never registered.
func (h Handle) Resolve() (*Task, bool) {
	if h.reg == nil {
		return nil, false
	}
	return h.reg.Lookup(h.id)
}
