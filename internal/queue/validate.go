package queue

import (
	"fmt"

	"github.com/gammazero/toposort"

	"github.com/aristath/taskflow/internal/task"
	"github.com/google/uuid"
)

// Validate runs a topological sort over the given tasks and their
// transitive dependencies, returning task names in an order that
// respects every dependency edge.
//
// Cycles in dependency sets, including a task depending on itself, are
// a caller error the core does not handle; Validate is how callers
// catch them before submission.
func Validate(tasks ...*task.Task) ([]string, error) {
	all := make(map[uuid.UUID]*task.Task)
	var collect func(t *task.Task)
	collect = func(t *task.Task) {
		if _, ok := all[t.ID()]; ok {
			return
		}
		all[t.ID()] = t
		for _, dep := range t.Dependencies() {
			collect(dep)
		}
	}
	for _, t := range tasks {
		collect(t)
	}

	var edges []toposort.Edge
	for id, t := range all {
		deps := t.Dependencies()
		if len(deps) == 0 {
			// Dependency-free tasks get a nil edge so the sort still
			// includes them.
			edges = append(edges, toposort.Edge{nil, id})
			continue
		}
		for _, dep := range deps {
			if dep.ID() == id {
				return nil, fmt.Errorf("task %q depends on itself", t.Name())
			}
			edges = append(edges, toposort.Edge{dep.ID(), id})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("dependency graph contains cycle: %w", err)
	}

	order := make([]string, 0, len(all))
	for _, v := range sorted {
		if v == nil {
			continue
		}
		order = append(order, all[v.(uuid.UUID)].Name())
	}
	return order, nil
}
